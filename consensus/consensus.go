package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goodturn-social/goodturn/events"
	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"
	"github.com/goodturn-social/goodturn/profiles"
	"github.com/goodturn-social/goodturn/reputation"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("consensus")

// requiredValidatorLevel gates who may validate each block type.
var requiredValidatorLevel = map[models.BlockType]int{
	models.BlockTypeHelp:       1,
	models.BlockTypeProposal:   2,
	models.BlockTypeValidation: 1,
	models.BlockTypeDispute:    3,
}

// requiredValidations is the vote count needed before the stake tally is
// consulted at all.
var requiredValidations = map[models.BlockType]int64{
	models.BlockTypeHelp:       3,
	models.BlockTypeProposal:   7,
	models.BlockTypeValidation: 1,
	models.BlockTypeDispute:    5,
}

// supermajority is the share of total stake one side must strictly exceed
// to finalize a block.
const supermajority = 0.66

// reward/penalty constants applied at finalization
const (
	validatorRewardCredits     = 2
	validatorRewardVoteCredits = 1
	rejectedActorPenalty       = 5
)

type Consensus struct {
	db       *gorm.DB
	Profiles *profiles.Store
	Rep      *reputation.Engine
	Notifs   *notifs.NotificationManager
	Events   *events.EventManager
	Logger   *slog.Logger
}

func NewConsensus(db *gorm.DB, pstore *profiles.Store, rep *reputation.Engine, nm *notifs.NotificationManager, evtman *events.EventManager) (*Consensus, error) {
	if err := db.AutoMigrate(models.BlockValidation{}); err != nil {
		return nil, err
	}

	return &Consensus{
		db:       db,
		Profiles: pstore,
		Rep:      rep,
		Notifs:   nm,
		Events:   evtman,
		Logger:   slog.Default().With("system", "consensus"),
	}, nil
}

// ValidateBlock records one validator's stake-weighted vote on a pending
// block, then runs the consensus check. Vote recording, the threshold
// check and finalization happen in a single transaction; the finalization
// itself is a conditional status update so concurrent quorum-crossing
// votes cannot finalize twice.
func (c *Consensus) ValidateBlock(ctx context.Context, blockID uint64, validatorUID uint64, decision models.ValidationDecision, reason string) (*models.BlockValidation, error) {
	ctx, span := tracer.Start(ctx, "ValidateBlock")
	defer span.End()

	validator, err := c.Profiles.GetProfile(ctx, validatorUID)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return nil, ErrValidatorNotFound
		}
		return nil, err
	}

	var block models.TrustBlock
	if err := c.db.First(&block, "id = ?", blockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	if block.Status != models.BlockStatusPending {
		return nil, ErrBlockAlreadyFinalized
	}

	level := reputation.ValidatorLevel(validator)
	if need := requiredValidatorLevel[block.Type]; level < need {
		return nil, &InsufficientValidatorLevelError{Have: level, Need: need}
	}

	validation := &models.BlockValidation{
		BlockID:      blockID,
		ValidatorUID: validatorUID,
		Decision:     decision,
		Reason:       reason,
		Stake:        reputation.Stake(validator),
	}

	var finalized models.BlockStatus
	err = c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(validation).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyValidated
			}
			return fmt.Errorf("recording validation: %w", err)
		}

		status, err := c.checkConsensus(tx, &block)
		if err != nil {
			return err
		}
		finalized = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	validationsRecorded.WithLabelValues(string(decision)).Inc()

	status := models.BlockStatusPending
	if finalized != "" {
		status = finalized
	}
	c.Events.AddEvent(&events.EngineEvent{
		Kind: events.EvtBlockValidated,
		Block: &events.BlockEvent{
			BlockID:  block.ID,
			Height:   block.Height,
			Type:     string(block.Type),
			ActorUID: block.ActorUID,
			Status:   string(status),
		},
	})

	if finalized != "" {
		c.afterFinalize(ctx, &block, finalized)
	}

	return validation, nil
}

// checkConsensus tallies the stake once enough validations exist. Returns
// the status the block was finalized to, or empty if it remains pending.
func (c *Consensus) checkConsensus(tx *gorm.DB, block *models.TrustBlock) (models.BlockStatus, error) {
	var count int64
	if err := tx.Model(models.BlockValidation{}).Where("block_id = ?", block.ID).Count(&count).Error; err != nil {
		return "", err
	}
	if count < requiredValidations[block.Type] {
		return "", nil
	}

	type tally struct {
		Decision models.ValidationDecision
		Total    int64
	}
	var tallies []tally
	err := tx.Model(models.BlockValidation{}).
		Select("decision, sum(stake) as total").
		Where("block_id = ?", block.ID).
		Group("decision").
		Scan(&tallies).Error
	if err != nil {
		return "", err
	}

	var approvalStake, rejectionStake int64
	for _, t := range tallies {
		switch t.Decision {
		case models.DecisionApprove:
			approvalStake = t.Total
		case models.DecisionReject:
			rejectionStake = t.Total
		}
	}
	totalStake := approvalStake + rejectionStake

	var status models.BlockStatus
	switch {
	case float64(approvalStake) > supermajority*float64(totalStake):
		status = models.BlockStatusApproved
	case float64(rejectionStake) > supermajority*float64(totalStake):
		status = models.BlockStatusRejected
	default:
		// no supermajority yet; await more validators
		return "", nil
	}

	return status, c.finalize(tx, block, status)
}

// finalize performs the exactly-once PENDING transition and its side
// effects. The conditional update is the race arbiter: of several
// concurrently-crossing votes only the one whose update sticks applies
// rewards and penalties, the rest observe zero affected rows and no-op.
func (c *Consensus) finalize(tx *gorm.DB, block *models.TrustBlock, status models.BlockStatus) error {
	res := tx.Model(models.TrustBlock{}).
		Where("id = ? AND status = ?", block.ID, models.BlockStatusPending).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race; another vote already finalized this block
		return nil
	}
	block.Status = status

	if status == models.BlockStatusApproved && block.Type == models.BlockTypeHelp {
		if err := c.Profiles.IncrementHelpGiven(tx, block.ActorUID, 1, helpHours(block)); err != nil {
			return fmt.Errorf("crediting help: %w", err)
		}
	}
	if status == models.BlockStatusRejected {
		if err := c.Profiles.AdjustCredits(tx, block.ActorUID, -rejectedActorPenalty); err != nil {
			return fmt.Errorf("penalizing actor: %w", err)
		}
	}

	winning := models.DecisionApprove
	if status == models.BlockStatusRejected {
		winning = models.DecisionReject
	}
	var winners []models.BlockValidation
	if err := tx.Find(&winners, "block_id = ? AND decision = ?", block.ID, winning).Error; err != nil {
		return err
	}
	for _, w := range winners {
		if err := c.Profiles.AdjustCredits(tx, w.ValidatorUID, validatorRewardCredits); err != nil {
			return err
		}
		if err := c.Profiles.AdjustVoteCredits(tx, w.ValidatorUID, validatorRewardVoteCredits); err != nil {
			return err
		}
	}

	return nil
}

// afterFinalize handles the non-transactional aftermath: notifications and
// the finalized event.
func (c *Consensus) afterFinalize(ctx context.Context, block *models.TrustBlock, status models.BlockStatus) {
	finalizations.WithLabelValues(string(status)).Inc()
	c.Logger.Info("block finalized", "block", block.ID, "height", block.Height, "status", status)

	kind := notifs.KindBlockApproved
	body := fmt.Sprintf("Your %s block at height %d was approved by the community", block.Type, block.Height)
	if status == models.BlockStatusRejected {
		kind = notifs.KindBlockRejected
		body = fmt.Sprintf("Your %s block at height %d was rejected by the community", block.Type, block.Height)
	}
	c.Notifs.Send(ctx, notifs.Notification{
		RecipientUID: block.ActorUID,
		Kind:         kind,
		Title:        "Block finalized",
		Body:         body,
		Data:         map[string]any{"blockId": block.ID, "status": status},
	})

	var winners []models.BlockValidation
	winning := models.DecisionApprove
	if status == models.BlockStatusRejected {
		winning = models.DecisionReject
	}
	if err := c.db.Find(&winners, "block_id = ? AND decision = ?", block.ID, winning).Error; err == nil {
		for _, w := range winners {
			c.Notifs.Send(ctx, notifs.Notification{
				RecipientUID: w.ValidatorUID,
				Kind:         notifs.KindValidatorReward,
				Title:        "Validation reward",
				Body:         "Your validation matched the community consensus",
				Data:         map[string]any{"blockId": block.ID},
			})
		}
	}

	c.Events.AddEvent(&events.EngineEvent{
		Kind: events.EvtBlockFinalized,
		Block: &events.BlockEvent{
			BlockID:  block.ID,
			Height:   block.Height,
			Type:     string(block.Type),
			ActorUID: block.ActorUID,
			Status:   string(status),
		},
	})
}

// Validations lists the recorded votes for a block.
func (c *Consensus) Validations(ctx context.Context, blockID uint64) ([]models.BlockValidation, error) {
	var out []models.BlockValidation
	if err := c.db.Order("created_at asc").Find(&out, "block_id = ?", blockID).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// helpHours pulls an optional completed-hours figure out of the block's
// opaque payload; payloads without one credit zero hours.
func helpHours(block *models.TrustBlock) int64 {
	var payload struct {
		Hours int64 `json:"hours"`
	}
	if err := json.Unmarshal([]byte(block.Content), &payload); err != nil {
		return 0
	}
	if payload.Hours < 0 {
		return 0
	}
	return payload.Hours
}
