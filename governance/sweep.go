package governance

import (
	"context"
	"time"

	"github.com/goodturn-social/goodturn/models"
)

// RunSweeper periodically advances proposals past their deadlines:
// DISCUSSION moves to VOTING, and VOTING proposals still short of the
// threshold at their deadline are rejected.
func (g *Governance) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.SweepDeadlines(ctx); err != nil {
				g.Logger.Error("governance sweep failed", "err", err)
			}
		}
	}
}

func (g *Governance) SweepDeadlines(ctx context.Context) error {
	now := time.Now()

	err := g.db.Model(models.Proposal{}).
		Where("status = ? AND discussion_deadline < ?", models.ProposalStatusDiscussion, now).
		Update("status", models.ProposalStatusVoting).Error
	if err != nil {
		return err
	}

	res := g.db.Model(models.Proposal{}).
		Where("status = ? AND voting_deadline < ?", models.ProposalStatusVoting, now).
		Update("status", models.ProposalStatusRejected)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		proposalsRejected.Add(float64(res.RowsAffected))
		g.Logger.Info("rejected proposals past voting deadline", "count", res.RowsAffected)
	}

	return nil
}
