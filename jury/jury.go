package jury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goodturn-social/goodturn/content"
	"github.com/goodturn-social/goodturn/events"
	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"
	"github.com/goodturn-social/goodturn/profiles"
	"github.com/goodturn-social/goodturn/reputation"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("jury")

var (
	ErrCaseNotFound    = errors.New("unknown moderation case")
	ErrCaseNotInVoting = errors.New("moderation case is not accepting votes")
	ErrVotingClosed    = errors.New("moderation voting deadline has passed")
	ErrAlreadyVoted    = errors.New("juror already voted on this case")
)

const (
	votingWindow      = 24 * time.Hour
	jurorRewardCredit = 3

	seniorJurors      = 3
	seniorMinHelp     = 20
	seniorActiveDays  = 7
	backingJurors     = 2
	backingMinHelp    = 5
	backingActiveDays = 30
)

type Jury struct {
	db       *gorm.DB
	Profiles *profiles.Store
	Rep      *reputation.Engine
	Content  *content.Store
	Notifs   *notifs.NotificationManager
	Events   *events.EventManager
	Logger   *slog.Logger
}

func NewJury(db *gorm.DB, pstore *profiles.Store, rep *reputation.Engine, cstore *content.Store, nm *notifs.NotificationManager, evtman *events.EventManager) (*Jury, error) {
	if err := db.AutoMigrate(models.ModerationCase{}); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.ModerationVote{}); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.GovernanceSettings{}); err != nil {
		return nil, err
	}

	return &Jury{
		db:       db,
		Profiles: pstore,
		Rep:      rep,
		Content:  cstore,
		Notifs:   nm,
		Events:   evtman,
		Logger:   slog.Default().With("system", "jury"),
	}, nil
}

// OpenCase starts a moderation case for reported content, selects a
// reputation-weighted jury and notifies it.
func (j *Jury) OpenCase(ctx context.Context, ref content.ContentRef, reason string, reporterUID uint64) (*models.ModerationCase, error) {
	ctx, span := tracer.Start(ctx, "OpenCase")
	defer span.End()

	// confirm the content exists before empaneling anyone
	if _, err := j.Content.FetchSummary(ctx, ref); err != nil {
		return nil, err
	}

	var settings models.GovernanceSettings
	if err := j.db.FirstOrCreate(&settings, models.GovernanceSettings{ID: 1}).Error; err != nil {
		return nil, err
	}

	mcase := &models.ModerationCase{
		ContentID:    ref.ID,
		ContentType:  string(ref.Type),
		ReportReason: reason,
		ReporterUID:  reporterUID,
		Status:       models.CaseStatusVoting,
		Quorum:       settings.ModerationQuorum,
		Deadline:     time.Now().Add(votingWindow),
	}
	if err := j.db.Create(mcase).Error; err != nil {
		return nil, err
	}
	casesOpened.Inc()

	jurors, err := j.selectJury(ctx)
	if err != nil {
		j.Logger.Warn("jury selection failed", "case", mcase.ID, "err", err)
	} else {
		j.Notifs.SendAll(ctx, jurors, notifs.Notification{
			Kind:  notifs.KindJuryDuty,
			Title: "Jury duty",
			Body:  fmt.Sprintf("Reported %s content needs your review: %s", ref.Type, reason),
			Data:  map[string]any{"caseId": mcase.ID},
		})
	}

	j.Events.AddEvent(&events.EngineEvent{
		Kind: events.EvtModerationStarted,
		Moderation: &events.ModerationEvent{
			CaseID:      mcase.ID,
			ContentType: mcase.ContentType,
			ContentID:   mcase.ContentID,
		},
	})

	j.Logger.Info("moderation case opened", "case", mcase.ID, "contentType", ref.Type, "contentId", ref.ID)
	return mcase, nil
}

// selectJury empanels three high-helpers active this week, ranked by help
// given, plus two recently-active members with a lower bar.
func (j *Jury) selectJury(ctx context.Context) ([]uint64, error) {
	senior, err := j.Profiles.FindCandidates(ctx, profiles.CandidateQuery{
		ActiveSince:  time.Now().Add(-seniorActiveDays * 24 * time.Hour),
		MinHelpGiven: seniorMinHelp,
		Ranked:       true,
		Limit:        seniorJurors,
	})
	if err != nil {
		return nil, err
	}

	exclude := make([]uint64, 0, len(senior))
	uids := make([]uint64, 0, seniorJurors+backingJurors)
	for _, p := range senior {
		exclude = append(exclude, p.UID)
		uids = append(uids, p.UID)
	}

	backing, err := j.Profiles.FindCandidates(ctx, profiles.CandidateQuery{
		ActiveSince:  time.Now().Add(-backingActiveDays * 24 * time.Hour),
		MinHelpGiven: backingMinHelp,
		Limit:        backingJurors,
		ExcludeUIDs:  exclude,
	})
	if err != nil {
		return nil, err
	}
	for _, p := range backing {
		uids = append(uids, p.UID)
	}

	return uids, nil
}

// Vote records a weighted juror vote; once the vote count reaches quorum
// the case executes on the highest-weight decision.
func (j *Jury) Vote(ctx context.Context, caseID uint64, voterUID uint64, decision models.ModerationDecision, reason string) (*models.ModerationVote, error) {
	ctx, span := tracer.Start(ctx, "Vote")
	defer span.End()

	var mcase models.ModerationCase
	if err := j.db.First(&mcase, "id = ?", caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	if time.Now().After(mcase.Deadline) {
		return nil, ErrVotingClosed
	}
	if mcase.Status != models.CaseStatusVoting {
		return nil, ErrCaseNotInVoting
	}

	rep, err := j.Rep.Reputation(ctx, voterUID)
	if err != nil {
		return nil, err
	}

	vote := &models.ModerationVote{
		CaseID:   caseID,
		VoterUID: voterUID,
		Decision: decision,
		Reason:   reason,
		Weight:   reputation.ModerationWeight(rep),
	}

	var executed models.ModerationDecision
	err = j.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyVoted
			}
			return fmt.Errorf("recording moderation vote: %w", err)
		}

		var count int64
		if err := tx.Model(models.ModerationVote{}).Where("case_id = ?", caseID).Count(&count).Error; err != nil {
			return err
		}
		if count < mcase.Quorum {
			return nil
		}

		final, err := j.executeCase(tx, &mcase)
		if err != nil {
			return err
		}
		executed = final
		return nil
	})
	if err != nil {
		return nil, err
	}
	votesRecorded.WithLabelValues(string(decision)).Inc()

	if executed != "" {
		j.afterExecute(ctx, &mcase, executed)
	}

	return vote, nil
}

// executeCase performs the exactly-once VOTING transition on the given
// transaction and rewards jurors on the winning side. The caller applies
// the decision to the content afterwards.
func (j *Jury) executeCase(tx *gorm.DB, mcase *models.ModerationCase) (models.ModerationDecision, error) {
	var votes []models.ModerationVote
	if err := tx.Find(&votes, "case_id = ?", mcase.ID).Error; err != nil {
		return "", err
	}

	final := TallyDecision(votes)

	now := time.Now()
	res := tx.Model(models.ModerationCase{}).
		Where("id = ? AND status = ?", mcase.ID, models.CaseStatusVoting).
		Updates(map[string]any{
			"status":         models.CaseStatusExecuted,
			"final_decision": final,
			"executed_at":    now,
		})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		// another vote already executed this case
		return "", nil
	}
	mcase.Status = models.CaseStatusExecuted
	mcase.FinalDecision = final
	mcase.ExecutedAt = &now

	for _, v := range votes {
		if v.Decision != final {
			continue
		}
		if err := j.Profiles.AdjustCredits(tx, v.VoterUID, jurorRewardCredit); err != nil {
			return "", err
		}
	}

	return final, nil
}

// TallyDecision picks the decision with the highest summed weight. Ties
// keep the earlier entry in KEEP, REMOVE, WARN order, so removal or a
// warning needs strictly more weight than keeping.
func TallyDecision(votes []models.ModerationVote) models.ModerationDecision {
	sums := map[models.ModerationDecision]int64{}
	for _, v := range votes {
		sums[v.Decision] += v.Weight
	}

	winner := models.ModerationKeep
	if sums[models.ModerationRemove] > sums[winner] {
		winner = models.ModerationRemove
	}
	if sums[models.ModerationWarn] > sums[winner] {
		winner = models.ModerationWarn
	}
	return winner
}

// afterExecute applies the decision to the reported content and notifies
// the winning jurors. Collaborator failures are logged, not propagated:
// the case itself has already executed.
func (j *Jury) afterExecute(ctx context.Context, mcase *models.ModerationCase, final models.ModerationDecision) {
	casesExecuted.WithLabelValues(string(final)).Inc()
	j.Logger.Info("moderation case executed", "case", mcase.ID, "decision", final)

	ref := content.ContentRef{Type: content.ContentType(mcase.ContentType), ID: mcase.ContentID}
	switch final {
	case models.ModerationRemove:
		if err := j.Content.Remove(ctx, ref); err != nil {
			j.Logger.Error("failed to remove moderated content", "case", mcase.ID, "err", err)
		}
	case models.ModerationWarn:
		if err := j.Content.WarnAuthor(ctx, ref, mcase.ReportReason); err != nil {
			j.Logger.Error("failed to warn content author", "case", mcase.ID, "err", err)
		}
	case models.ModerationKeep:
		// content stays up
	}

	var winners []models.ModerationVote
	if err := j.db.Find(&winners, "case_id = ? AND decision = ?", mcase.ID, final).Error; err == nil {
		for _, w := range winners {
			j.Notifs.Send(ctx, notifs.Notification{
				RecipientUID: w.VoterUID,
				Kind:         notifs.KindJurorReward,
				Title:        "Jury reward",
				Body:         "Your moderation vote matched the jury's decision",
				Data:         map[string]any{"caseId": mcase.ID},
			})
		}
	}

	j.Events.AddEvent(&events.EngineEvent{
		Kind: events.EvtModerationExec,
		Moderation: &events.ModerationEvent{
			CaseID:      mcase.ID,
			ContentType: mcase.ContentType,
			ContentID:   mcase.ContentID,
			Decision:    string(final),
		},
	})
}

// GetCase looks up a moderation case by ID.
func (j *Jury) GetCase(ctx context.Context, id uint64) (*models.ModerationCase, error) {
	var mcase models.ModerationCase
	if err := j.db.First(&mcase, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return &mcase, nil
}

// Votes lists the recorded votes for a case.
func (j *Jury) Votes(ctx context.Context, caseID uint64) ([]models.ModerationVote, error) {
	var out []models.ModerationVote
	if err := j.db.Order("created_at asc").Find(&out, "case_id = ?", caseID).Error; err != nil {
		return nil, err
	}
	return out, nil
}
