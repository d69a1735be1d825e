package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goodturn-social/goodturn/events"
	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"
	"github.com/goodturn-social/goodturn/profiles"
	"github.com/goodturn-social/goodturn/reputation"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("ledger")

// requiredWork gates which block types an actor may create.
var requiredWork = map[models.BlockType]int64{
	models.BlockTypeHelp:       0,
	models.BlockTypeProposal:   20,
	models.BlockTypeValidation: 5,
	models.BlockTypeDispute:    50,
}

// appendRetries bounds how often a concurrent height conflict triggers a
// re-read and re-mine before the create fails outright.
const appendRetries = 5

type Ledger struct {
	db       *gorm.DB
	Profiles *profiles.Store
	Rep      *reputation.Engine
	Notifs   *notifs.NotificationManager
	Events   *events.EventManager
	Logger   *slog.Logger

	limits *actorLimits
}

func NewLedger(db *gorm.DB, pstore *profiles.Store, rep *reputation.Engine, nm *notifs.NotificationManager, evtman *events.EventManager) (*Ledger, error) {
	if err := db.AutoMigrate(models.TrustBlock{}); err != nil {
		return nil, err
	}

	return &Ledger{
		db:       db,
		Profiles: pstore,
		Rep:      rep,
		Notifs:   nm,
		Events:   evtman,
		Logger:   slog.Default().With("system", "ledger"),
		limits:   newActorLimits(),
	}, nil
}

// CreateBlock appends a new PENDING block to the trust ledger: checks the
// actor's work against the requirement for the block type, mines a nonce
// against the demand-adaptive difficulty, persists the block, and requests
// validation from the given witnesses (or an automatically selected set).
func (l *Ledger) CreateBlock(ctx context.Context, typ models.BlockType, actorUID uint64, content string, witnesses []uint64) (*models.TrustBlock, error) {
	ctx, span := tracer.Start(ctx, "CreateBlock")
	defer span.End()

	need, ok := requiredWork[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlockType, typ)
	}

	if !l.limits.allow(actorUID) {
		return nil, ErrRateLimited
	}

	have, err := l.Rep.Work(ctx, actorUID)
	if err != nil {
		return nil, fmt.Errorf("computing actor work: %w", err)
	}
	if have < need {
		return nil, &InsufficientWorkError{Have: have, Need: need}
	}

	difficulty, err := l.CurrentDifficulty(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing difficulty: %w", err)
	}

	block, err := l.appendBlock(ctx, typ, actorUID, content, difficulty)
	if err != nil {
		return nil, err
	}
	blocksCreated.WithLabelValues(string(typ)).Inc()

	l.Logger.Info("trust block created", "height", block.Height, "type", typ, "actor", actorUID, "difficulty", difficulty)

	if err := l.requestValidation(ctx, block, witnesses); err != nil {
		// the block is persisted and discoverable; witness notification is
		// best-effort
		l.Logger.Warn("failed to request validation", "block", block.ID, "err", err)
	}

	l.Events.AddEvent(&events.EngineEvent{
		Kind: events.EvtBlockCreated,
		Block: &events.BlockEvent{
			BlockID:  block.ID,
			Height:   block.Height,
			Type:     string(block.Type),
			ActorUID: block.ActorUID,
			Status:   string(block.Status),
		},
	})

	return block, nil
}

// appendBlock mines and persists one block. Mining happens outside any
// transaction; the uniqueIndex on height detects a concurrent append, in
// which case the head is re-read and the block re-mined.
func (l *Ledger) appendBlock(ctx context.Context, typ models.BlockType, actorUID uint64, content string, difficulty int) (*models.TrustBlock, error) {
	for attempt := 0; attempt < appendRetries; attempt++ {
		height, prevHash, err := l.chainHead(ctx)
		if err != nil {
			return nil, err
		}

		block := &models.TrustBlock{
			CreatedAt:  time.Now(),
			Height:     height + 1,
			PrevHash:   prevHash,
			Type:       typ,
			ActorUID:   actorUID,
			Content:    content,
			Difficulty: difficulty,
			Status:     models.BlockStatusPending,
		}

		if err := mine(block); err != nil {
			return nil, err
		}

		err = l.db.Create(block).Error
		if err == nil {
			return block, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// another writer took this height; re-read and re-mine
			appendConflicts.Inc()
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("append contention: gave up after %d attempts", appendRetries)
}

func (l *Ledger) chainHead(ctx context.Context) (uint64, string, error) {
	var head models.TrustBlock
	err := l.db.Order("height desc").First(&head).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, GenesisPrevHash, nil
		}
		return 0, "", err
	}
	return head.Height, head.Hash, nil
}

// CurrentDifficulty adapts to demand: the busier the last hour, the more
// leading zeros the next block hash must carry.
func (l *Ledger) CurrentDifficulty(ctx context.Context) (int, error) {
	var count int64
	err := l.db.Model(models.TrustBlock{}).
		Where("created_at > ?", time.Now().Add(-time.Hour)).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	switch {
	case count > 100:
		return 4, nil
	case count > 50:
		return 3, nil
	case count > 20:
		return 2, nil
	default:
		return 1, nil
	}
}

// requestValidation notifies the witness set that a block awaits their
// vote. With no explicit witnesses, validators are picked from the actor's
// neighborhood: active within 7 days, at least 10 helps given, top 7 by
// help count; actors without a location get the same ranking network-wide.
func (l *Ledger) requestValidation(ctx context.Context, block *models.TrustBlock, witnesses []uint64) error {
	if len(witnesses) == 0 {
		selected, err := l.SelectWitnesses(ctx, block.ActorUID)
		if err != nil {
			return err
		}
		witnesses = selected
	}

	l.Notifs.SendAll(ctx, witnesses, notifs.Notification{
		Kind:  notifs.KindValidationRequest,
		Title: "Validation requested",
		Body:  fmt.Sprintf("A %s block at height %d needs your validation", block.Type, block.Height),
		Data:  map[string]any{"blockId": block.ID, "type": block.Type},
	})
	return nil
}

func (l *Ledger) SelectWitnesses(ctx context.Context, actorUID uint64) ([]uint64, error) {
	actor, err := l.Profiles.GetProfile(ctx, actorUID)
	if err != nil {
		return nil, err
	}

	q := profiles.CandidateQuery{
		Neighborhood: actor.Neighborhood,
		ActiveSince:  time.Now().Add(-7 * 24 * time.Hour),
		MinHelpGiven: 10,
		Ranked:       true,
		Limit:        7,
		ExcludeUIDs:  []uint64{actorUID},
	}
	candidates, err := l.Profiles.FindCandidates(ctx, q)
	if err != nil {
		return nil, err
	}

	uids := make([]uint64, 0, len(candidates))
	for _, c := range candidates {
		uids = append(uids, c.UID)
	}
	return uids, nil
}

// GetBlock looks up a block by ID.
func (l *Ledger) GetBlock(ctx context.Context, id uint64) (*models.TrustBlock, error) {
	var b models.TrustBlock
	if err := l.db.First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBlocks pages through the chain in height order.
func (l *Ledger) ListBlocks(ctx context.Context, afterHeight uint64, limit int) ([]models.TrustBlock, error) {
	var out []models.TrustBlock
	err := l.db.Where("height > ?", afterHeight).Order("height asc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
