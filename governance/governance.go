package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goodturn-social/goodturn/events"
	"github.com/goodturn-social/goodturn/ledger"
	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"
	"github.com/goodturn-social/goodturn/profiles"
	"github.com/goodturn-social/goodturn/reputation"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("governance")

const (
	discussionWindow = 3 * 24 * time.Hour
	votingWindow     = 7 * 24 * time.Hour

	// floor of the dynamic approval threshold
	minApprovalThreshold = 10

	activeUserWindow = 30 * 24 * time.Hour
)

type Governance struct {
	db       *gorm.DB
	Profiles *profiles.Store
	Rep      *reputation.Engine
	Ledger   *ledger.Ledger
	Notifs   *notifs.NotificationManager
	Events   *events.EventManager
	Logger   *slog.Logger
}

func NewGovernance(db *gorm.DB, pstore *profiles.Store, rep *reputation.Engine, tl *ledger.Ledger, nm *notifs.NotificationManager, evtman *events.EventManager) (*Governance, error) {
	for _, m := range []any{
		models.Proposal{}, models.ProposalVote{}, models.ProposalComment{},
		models.GovernanceSettings{}, models.AuditRecord{},
	} {
		if err := db.AutoMigrate(m); err != nil {
			return nil, err
		}
	}

	return &Governance{
		db:       db,
		Profiles: pstore,
		Rep:      rep,
		Ledger:   tl,
		Notifs:   nm,
		Events:   evtman,
		Logger:   slog.Default().With("system", "governance"),
	}, nil
}

func (g *Governance) settings() (*models.GovernanceSettings, error) {
	var s models.GovernanceSettings
	if err := g.db.FirstOrCreate(&s, models.GovernanceSettings{ID: 1}).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateProposal gates the author on reputation, writes a PROPOSAL trust
// block for provenance (with its own work and mining preconditions), and
// opens the proposal in DISCUSSION.
func (g *Governance) CreateProposal(ctx context.Context, authorUID uint64, typ models.ProposalType, title, description, params string) (*models.Proposal, error) {
	ctx, span := tracer.Start(ctx, "CreateProposal")
	defer span.End()

	settings, err := g.settings()
	if err != nil {
		return nil, err
	}

	rep, err := g.Rep.Reputation(ctx, authorUID)
	if err != nil {
		return nil, err
	}
	if rep < settings.ProposalReputationGate {
		return nil, &InsufficientReputationError{Have: rep, Need: settings.ProposalReputationGate}
	}

	block, err := g.Ledger.CreateBlock(ctx, models.BlockTypeProposal, authorUID, fmt.Sprintf(`{"proposalTitle":%q}`, title), nil)
	if err != nil {
		return nil, fmt.Errorf("creating provenance block: %w", err)
	}

	now := time.Now()
	prop := &models.Proposal{
		BlockID:            block.ID,
		AuthorUID:          authorUID,
		Type:               typ,
		Title:              title,
		Description:        description,
		Params:             params,
		Status:             models.ProposalStatusDiscussion,
		DiscussionDeadline: now.Add(discussionWindow),
		VotingDeadline:     now.Add(votingWindow),
	}
	if err := g.db.Create(prop).Error; err != nil {
		return nil, err
	}
	proposalsCreated.WithLabelValues(string(typ)).Inc()

	g.Events.AddEvent(&events.EngineEvent{
		Kind: events.EvtProposalCreated,
		Proposal: &events.ProposalEvent{
			ProposalID: prop.ID,
			Type:       string(typ),
			AuthorUID:  authorUID,
			Status:     string(prop.Status),
		},
	})

	g.Logger.Info("proposal created", "proposal", prop.ID, "type", typ, "author", authorUID)
	return prop, nil
}

// Vote casts a quadratic vote: points cost points² from the voter's
// vote-credit budget; a re-vote replaces the previous one and refunds its
// cost first. Crossing the dynamic approval threshold approves and
// executes the proposal.
func (g *Governance) Vote(ctx context.Context, proposalID uint64, voterUID uint64, points int64) (*models.ProposalVote, error) {
	ctx, span := tracer.Start(ctx, "Vote")
	defer span.End()

	prop, err := g.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	// deadlines are enforced lazily: a vote attempt after the discussion
	// window promotes the proposal to VOTING first
	if prop.Status == models.ProposalStatusDiscussion && time.Now().After(prop.DiscussionDeadline) {
		if err := g.openVoting(ctx, prop); err != nil {
			return nil, err
		}
	}

	if prop.Status != models.ProposalStatusVoting {
		return nil, ErrProposalNotInVoting
	}
	if time.Now().After(prop.VotingDeadline) {
		return nil, ErrVotingClosed
	}

	cost := points * points

	threshold, err := g.ApprovalThreshold(ctx)
	if err != nil {
		return nil, err
	}

	vote := &models.ProposalVote{
		ProposalID: proposalID,
		VoterUID:   voterUID,
		Points:     points,
		Cost:       cost,
	}

	approved := false
	err = g.db.Transaction(func(tx *gorm.DB) error {
		// read the budget inside the transaction, not from the profile cache
		var voter models.UserProfile
		if err := tx.First(&voter, "uid = ?", voterUID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return profiles.ErrProfileNotFound
			}
			return err
		}

		var refund int64
		var prior models.ProposalVote
		err := tx.First(&prior, "proposal_id = ? AND voter_uid = ?", proposalID, voterUID).Error
		switch {
		case err == nil:
			refund = prior.Cost
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		available := voter.VoteCredits + refund
		if cost > available {
			return &InsufficientVoteCreditsError{Cost: cost, Available: available}
		}

		if refund > 0 {
			if err := tx.Model(&prior).Updates(map[string]any{"points": points, "cost": cost}).Error; err != nil {
				return err
			}
			vote = &prior
			vote.Points = points
			vote.Cost = cost
		} else {
			if err := tx.Create(vote).Error; err != nil {
				return fmt.Errorf("recording proposal vote: %w", err)
			}
		}

		if err := g.Profiles.AdjustVoteCredits(tx, voterUID, refund-cost); err != nil {
			return err
		}

		var totalPoints int64
		err = tx.Model(models.ProposalVote{}).Where("proposal_id = ?", proposalID).
			Select("coalesce(sum(points), 0)").Scan(&totalPoints).Error
		if err != nil {
			return err
		}
		if totalPoints < threshold {
			return nil
		}

		res := tx.Model(models.Proposal{}).
			Where("id = ? AND status = ?", proposalID, models.ProposalStatusVoting).
			Update("status", models.ProposalStatusApproved)
		if res.Error != nil {
			return res.Error
		}
		approved = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	proposalVotes.Inc()

	if approved {
		prop.Status = models.ProposalStatusApproved
		proposalsApproved.WithLabelValues(string(prop.Type)).Inc()
		g.Events.AddEvent(&events.EngineEvent{
			Kind: events.EvtProposalApproved,
			Proposal: &events.ProposalEvent{
				ProposalID: prop.ID,
				Type:       string(prop.Type),
				AuthorUID:  prop.AuthorUID,
				Status:     string(models.ProposalStatusApproved),
			},
		})
		g.Execute(ctx, prop)
	}

	return vote, nil
}

// ApprovalThreshold scales with participation: a tenth of the users active
// in the last 30 days, never below the floor. Queried fresh every time.
func (g *Governance) ApprovalThreshold(ctx context.Context) (int64, error) {
	active, err := g.Profiles.ActiveUserCount(ctx, time.Now().Add(-activeUserWindow))
	if err != nil {
		return 0, err
	}

	threshold := active / 10
	if threshold < minApprovalThreshold {
		threshold = minApprovalThreshold
	}
	return threshold, nil
}

// openVoting performs the lazy DISCUSSION to VOTING promotion. The
// conditional update means concurrent promoters race harmlessly.
func (g *Governance) openVoting(ctx context.Context, prop *models.Proposal) error {
	res := g.db.Model(models.Proposal{}).
		Where("id = ? AND status = ?", prop.ID, models.ProposalStatusDiscussion).
		Update("status", models.ProposalStatusVoting)
	if res.Error != nil {
		return res.Error
	}
	prop.Status = models.ProposalStatusVoting
	return nil
}

func (g *Governance) GetProposal(ctx context.Context, id uint64) (*models.Proposal, error) {
	var prop models.Proposal
	if err := g.db.First(&prop, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProposalNotFound
		}
		return nil, err
	}
	return &prop, nil
}

// ListProposals pages proposals newest-first.
func (g *Governance) ListProposals(ctx context.Context, limit int) ([]models.Proposal, error) {
	var out []models.Proposal
	if err := g.db.Order("created_at desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Votes lists the recorded votes on a proposal.
func (g *Governance) Votes(ctx context.Context, proposalID uint64) ([]models.ProposalVote, error) {
	var out []models.ProposalVote
	if err := g.db.Order("created_at asc").Find(&out, "proposal_id = ?", proposalID).Error; err != nil {
		return nil, err
	}
	return out, nil
}
