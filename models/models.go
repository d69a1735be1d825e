package models

import (
	"time"
)

// UserProfile holds the per-user attributes the consensus engine reads and
// mutates. The wider platform owns the rest of the user record; only the
// fields relevant to reputation, work and vote budgets live here.
type UserProfile struct {
	UID uint64 `gorm:"column:uid;primarykey"`

	Handle       string `gorm:"column:handle;uniqueIndex;not null"`
	Neighborhood string `gorm:"column:neighborhood;index"`

	HelpGiven    int64 `gorm:"column:help_given;default:0"`
	HelpReceived int64 `gorm:"column:help_received;default:0"`

	// total completed-help hours; together with Badges this is the actor's "work"
	HoursHelped int64 `gorm:"column:hours_helped;default:0"`

	Badges      int64 `gorm:"column:badges;default:0"`
	Connections int64 `gorm:"column:connections;default:0"`

	Credits     int64 `gorm:"column:credits;default:0"`
	VoteCredits int64 `gorm:"column:vote_credits;default:0"`

	JoinedAt     time.Time `gorm:"column:joined_at;not null"`
	LastActiveAt time.Time `gorm:"column:last_active_at;index"`
}

func (UserProfile) TableName() string {
	return "user_profile"
}

type Community struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Name        string `gorm:"column:name;uniqueIndex;not null"`
	Description string `gorm:"column:description"`
	MemberCount int64  `gorm:"column:member_count;default:0"`
	Dissolved   bool   `gorm:"column:dissolved;default:false"`
}

func (Community) TableName() string {
	return "community"
}

type CommunityMember struct {
	CommunityID uint64 `gorm:"column:community_id;primarykey"`
	UID         uint64 `gorm:"column:uid;primarykey"`

	CreatedAt time.Time
}

func (CommunityMember) TableName() string {
	return "community_member"
}

// GovernanceSettings is a single-row table of tunable governance parameters,
// patched by RULE_CHANGE proposals.
type GovernanceSettings struct {
	ID uint64 `gorm:"column:id;primarykey"`

	UpdatedAt time.Time

	ProposalReputationGate int64 `gorm:"column:proposal_reputation_gate;default:20"`
	VoteCreditGrant        int64 `gorm:"column:vote_credit_grant;default:100"`
	ModerationQuorum       int64 `gorm:"column:moderation_quorum;default:5"`
}

func (GovernanceSettings) TableName() string {
	return "governance_settings"
}

// AuditRecord is an append-only trail of privileged mutations performed by
// proposal execution. Before/After are JSON snapshots.
type AuditRecord struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time

	Ref         string `gorm:"column:ref;uniqueIndex;not null"`
	Kind        string `gorm:"column:kind;not null"`
	ActorUID    uint64 `gorm:"column:actor_uid"`
	SubjectType string `gorm:"column:subject_type;not null"`
	SubjectID   uint64 `gorm:"column:subject_id"`
	Before      string `gorm:"column:before"`
	After       string `gorm:"column:after"`
}

func (AuditRecord) TableName() string {
	return "audit_record"
}

// NotifRecord is the fire-and-forget notification sink. Delivery to devices
// is the platform's concern; the engine only appends rows.
type NotifRecord struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time

	Ref          string `gorm:"column:ref;not null"`
	RecipientUID uint64 `gorm:"column:recipient_uid;index;not null"`
	Kind         string `gorm:"column:kind;not null"`
	Title        string `gorm:"column:title"`
	Body         string `gorm:"column:body"`
	Data         string `gorm:"column:data"`
}

func (NotifRecord) TableName() string {
	return "notif_record"
}
