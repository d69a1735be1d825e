package jury

import (
	"context"
	"time"

	"github.com/goodturn-social/goodturn/models"

	"gorm.io/gorm"
)

// RunSweeper periodically force-executes moderation cases whose deadline
// passed below quorum. Deadlines are otherwise only checked lazily on the
// next vote, which would leave under-voted cases open forever.
func (j *Jury) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := j.SweepExpired(ctx); err != nil {
				j.Logger.Error("moderation sweep failed", "err", err)
			}
		}
	}
}

// SweepExpired executes every expired case still in VOTING on the
// plurality of the votes it did collect; a case with no votes at all
// executes as KEEP, leaving the content untouched.
func (j *Jury) SweepExpired(ctx context.Context) error {
	var expired []models.ModerationCase
	err := j.db.Where("status = ? AND deadline < ?", models.CaseStatusVoting, time.Now()).Find(&expired).Error
	if err != nil {
		return err
	}

	for i := range expired {
		mcase := &expired[i]

		var executed models.ModerationDecision
		err := j.db.Transaction(func(tx *gorm.DB) error {
			final, err := j.executeCase(tx, mcase)
			if err != nil {
				return err
			}
			executed = final
			return nil
		})
		if err != nil {
			j.Logger.Error("failed to execute expired case", "case", mcase.ID, "err", err)
			continue
		}
		if executed != "" {
			casesExpired.Inc()
			j.afterExecute(ctx, mcase, executed)
		}
	}

	return nil
}
