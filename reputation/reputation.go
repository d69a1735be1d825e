package reputation

import (
	"context"
	"errors"
	"time"

	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/profiles"

	"gorm.io/gorm"
)

// Engine computes reputation-derived scores from profile attributes and
// validation history. All methods are read-only; results are never cached
// across requests since every input is mutable.
type Engine struct {
	db       *gorm.DB
	Profiles *profiles.Store
}

func NewEngine(db *gorm.DB, pstore *profiles.Store) *Engine {
	return &Engine{
		db:       db,
		Profiles: pstore,
	}
}

// Reputation scores a user from their activity history:
//
//	5*helpGiven + 2*helpReceived + 10*badges + connections
//	  + 3*accountAgeMonths + 3*successfulValidations
//
// scaled by a recency multiplier (1.2 if active within 7 days, 0.8 if idle
// over 30 days) and floored to an integer. Unknown users score 0.
func (e *Engine) Reputation(ctx context.Context, uid uint64) (int64, error) {
	p, err := e.Profiles.GetProfile(ctx, uid)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return 0, nil
		}
		return 0, err
	}

	validations, err := e.SuccessfulValidations(ctx, uid)
	if err != nil {
		return 0, err
	}

	ageMonths := int64(time.Since(p.JoinedAt).Hours() / (24 * 30))
	if ageMonths < 0 {
		ageMonths = 0
	}

	base := 5*p.HelpGiven + 2*p.HelpReceived + 10*p.Badges + p.Connections +
		3*ageMonths + 3*validations

	idle := time.Since(p.LastActiveAt)
	score := float64(base)
	switch {
	case idle < 7*24*time.Hour:
		score *= 1.2
	case idle > 30*24*time.Hour:
		score *= 0.8
	}

	rep := int64(score)
	if rep < 0 {
		rep = 0
	}
	return rep, nil
}

// SuccessfulValidations counts the user's validation votes whose decision
// matched the block's final status.
func (e *Engine) SuccessfulValidations(ctx context.Context, uid uint64) (int64, error) {
	var count int64
	err := e.db.Model(models.BlockValidation{}).
		Joins("JOIN trust_block ON trust_block.id = block_validation.block_id").
		Where("block_validation.validator_uid = ?", uid).
		Where("(block_validation.decision = ? AND trust_block.status = ?) OR (block_validation.decision = ? AND trust_block.status = ?)",
			models.DecisionApprove, models.BlockStatusApproved,
			models.DecisionReject, models.BlockStatusRejected).
		Count(&count).Error
	return count, err
}

// Work is the actor's accumulated help hours plus badges; it gates which
// block types they may create.
func (e *Engine) Work(ctx context.Context, uid uint64) (int64, error) {
	p, err := e.Profiles.GetProfile(ctx, uid)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return p.HoursHelped + p.Badges, nil
}

// ValidatorLevel buckets a validator by help-given count.
func ValidatorLevel(p *models.UserProfile) int {
	switch {
	case p.HelpGiven >= 100:
		return 3
	case p.HelpGiven >= 50:
		return 2
	case p.HelpGiven >= 10:
		return 1
	default:
		return 0
	}
}

// Stake is the weight frozen into a validation vote at cast time.
func Stake(p *models.UserProfile) int64 {
	return 2*p.HelpGiven + p.HoursHelped
}

// ModerationWeight is a juror's vote weight, reputation/10 capped at 10.
func ModerationWeight(rep int64) int64 {
	w := rep / 10
	if w > 10 {
		w = 10
	}
	return w
}
