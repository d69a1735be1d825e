package models

import (
	"time"
)

type ProposalType string

const (
	ProposalCommunityUpdate      = ProposalType("COMMUNITY_UPDATE")
	ProposalCommunityDissolution = ProposalType("COMMUNITY_DISSOLUTION")
	ProposalFundAllocation       = ProposalType("FUND_ALLOCATION")
	ProposalRuleChange           = ProposalType("RULE_CHANGE")
	ProposalFeature              = ProposalType("FEATURE")
	ProposalPartnership          = ProposalType("PARTNERSHIP")
)

type ProposalStatus string

const (
	ProposalStatusDiscussion  = ProposalStatus("DISCUSSION")
	ProposalStatusVoting      = ProposalStatus("VOTING")
	ProposalStatusApproved    = ProposalStatus("APPROVED")
	ProposalStatusRejected    = ProposalStatus("REJECTED")
	ProposalStatusImplemented = ProposalStatus("IMPLEMENTED")
)

// Proposal is a community-improvement proposal. BlockID references the
// PROPOSAL-type TrustBlock created alongside it for provenance.
type Proposal struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	BlockID   uint64       `gorm:"column:block_id;uniqueIndex;not null"`
	AuthorUID uint64       `gorm:"column:author_uid;index;not null"`
	Type      ProposalType `gorm:"column:type;not null"`

	Title       string `gorm:"column:title;not null"`
	Description string `gorm:"column:description"`

	// JSON parameters consumed by execution (target community, recipient,
	// field patches); shape depends on Type
	Params string `gorm:"column:params"`

	Status ProposalStatus `gorm:"column:status;default:DISCUSSION;index"`

	DiscussionDeadline time.Time `gorm:"column:discussion_deadline;not null"`
	VotingDeadline     time.Time `gorm:"column:voting_deadline;index;not null"`
}

func (Proposal) TableName() string {
	return "proposal"
}

// ProposalVote is a quadratic vote: casting Points costs Points² from the
// voter's vote-credit budget. Re-voting replaces the prior row and refunds
// its cost. One row per (proposal, voter).
type ProposalVote struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	ProposalID uint64 `gorm:"column:proposal_id;uniqueIndex:idx_propvote_proposal_voter;not null"`
	VoterUID   uint64 `gorm:"column:voter_uid;uniqueIndex:idx_propvote_proposal_voter;not null"`

	// signed magnitude chosen by the voter; negative points vote against
	Points int64 `gorm:"column:points;not null"`
	Cost   int64 `gorm:"column:cost;not null"`
}

func (ProposalVote) TableName() string {
	return "proposal_vote"
}

type ProposalComment struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time

	ProposalID uint64  `gorm:"column:proposal_id;index;not null"`
	AuthorUID  uint64  `gorm:"column:author_uid;not null"`
	ParentID   *uint64 `gorm:"column:parent_id;index"`
	Body       string  `gorm:"column:body;not null"`
}

func (ProposalComment) TableName() string {
	return "proposal_comment"
}
