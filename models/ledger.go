package models

import (
	"time"
)

type BlockType string

const (
	BlockTypeHelp       = BlockType("HELP")
	BlockTypeProposal   = BlockType("PROPOSAL")
	BlockTypeValidation = BlockType("VALIDATION")
	BlockTypeDispute    = BlockType("DISPUTE")
)

type BlockStatus string

const (
	BlockStatusPending  = BlockStatus("PENDING")
	BlockStatusApproved = BlockStatus("APPROVED")
	BlockStatusRejected = BlockStatus("REJECTED")
)

// TrustBlock is one entry in the append-only trust ledger. Height is
// strictly increasing; PrevHash links each block to its predecessor. The
// uniqueIndex on height is what serializes concurrent appends.
type TrustBlock struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time

	Height   uint64 `gorm:"column:height;uniqueIndex;not null"`
	Hash     string `gorm:"column:hash;uniqueIndex;not null"`
	PrevHash string `gorm:"column:prev_hash;not null"`

	Type     BlockType `gorm:"column:type;not null"`
	ActorUID uint64    `gorm:"column:actor_uid;index;not null"`

	// opaque payload describing the claimed action
	Content string `gorm:"column:content"`

	Nonce      uint64      `gorm:"column:nonce"`
	Difficulty int         `gorm:"column:difficulty;not null"`
	Status     BlockStatus `gorm:"column:status;default:PENDING;index"`
}

func (TrustBlock) TableName() string {
	return "trust_block"
}

type ValidationDecision string

const (
	DecisionApprove = ValidationDecision("APPROVE")
	DecisionReject  = ValidationDecision("REJECT")
)

// BlockValidation is a single validator's stake-weighted vote on a pending
// block. Stake is computed from the validator's profile at vote time and
// never recomputed. One vote per (block, validator).
type BlockValidation struct {
	ID uint64 `gorm:"column:id;primarykey"`

	CreatedAt time.Time

	BlockID      uint64             `gorm:"column:block_id;uniqueIndex:idx_validation_block_validator;not null"`
	ValidatorUID uint64             `gorm:"column:validator_uid;uniqueIndex:idx_validation_block_validator;not null"`
	Decision     ValidationDecision `gorm:"column:decision;not null"`
	Reason       string             `gorm:"column:reason"`
	Stake        int64              `gorm:"column:stake;not null"`
}

func (BlockValidation) TableName() string {
	return "block_validation"
}
