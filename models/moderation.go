package models

import (
	"time"
)

type CaseStatus string

const (
	CaseStatusVoting   = CaseStatus("VOTING")
	CaseStatusExecuted = CaseStatus("EXECUTED")
)

type ModerationDecision string

const (
	ModerationKeep   = ModerationDecision("KEEP")
	ModerationRemove = ModerationDecision("REMOVE")
	ModerationWarn   = ModerationDecision("WARN")
)

type ModerationCase struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	ContentID    uint64 `gorm:"column:content_id;not null"`
	ContentType  string `gorm:"column:content_type;not null"`
	ReportReason string `gorm:"column:report_reason;not null"`
	ReporterUID  uint64 `gorm:"column:reporter_uid"`

	Status   CaseStatus `gorm:"column:status;default:VOTING;index"`
	Quorum   int64      `gorm:"column:quorum;not null"`
	Deadline time.Time  `gorm:"column:deadline;index;not null"`

	FinalDecision ModerationDecision `gorm:"column:final_decision"`
	ExecutedAt    *time.Time         `gorm:"column:executed_at"`
}

func (ModerationCase) TableName() string {
	return "moderation_case"
}

// ModerationVote carries a reputation-derived weight frozen at vote time,
// capped at 10. One vote per (case, voter).
type ModerationVote struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time

	CaseID   uint64             `gorm:"column:case_id;uniqueIndex:idx_modvote_case_voter;not null"`
	VoterUID uint64             `gorm:"column:voter_uid;uniqueIndex:idx_modvote_case_voter;not null"`
	Decision ModerationDecision `gorm:"column:decision;not null"`
	Reason   string             `gorm:"column:reason"`
	Weight   int64              `gorm:"column:weight;not null"`
}

func (ModerationVote) TableName() string {
	return "moderation_vote"
}
