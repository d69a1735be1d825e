package governance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goodturn-social/goodturn/audit"
	"github.com/goodturn-social/goodturn/models"
	"github.com/goodturn-social/goodturn/notifs"

	"gorm.io/gorm"
)

// Execute runs the approved proposal's effect. Each proposal type executes
// in its own transaction so a failure can never leave the audit trail
// disagreeing with the applied state. Failure leaves the proposal APPROVED
// and notifies the author; the approval is never rolled back.
func (g *Governance) Execute(ctx context.Context, prop *models.Proposal) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()

	implemented, err := g.execute(ctx, prop)
	if err != nil {
		executionFailures.WithLabelValues(string(prop.Type)).Inc()
		g.Logger.Error("proposal execution failed", "proposal", prop.ID, "type", prop.Type, "err", err)
		g.Notifs.Send(ctx, notifs.Notification{
			RecipientUID: prop.AuthorUID,
			Kind:         notifs.KindProposalExecError,
			Title:        "Proposal execution failed",
			Body:         fmt.Sprintf("Your proposal %q was approved but could not be executed: %s", prop.Title, err),
			Data:         map[string]any{"proposalId": prop.ID},
		})
		return
	}

	if implemented {
		err := g.db.Model(models.Proposal{}).
			Where("id = ? AND status = ?", prop.ID, models.ProposalStatusApproved).
			Update("status", models.ProposalStatusImplemented).Error
		if err != nil {
			g.Logger.Error("failed to mark proposal implemented", "proposal", prop.ID, "err", err)
		} else {
			prop.Status = models.ProposalStatusImplemented
		}
	}

	g.Notifs.Send(ctx, notifs.Notification{
		RecipientUID: prop.AuthorUID,
		Kind:         notifs.KindProposalApproved,
		Title:        "Proposal approved",
		Body:         fmt.Sprintf("Your proposal %q was approved by the community", prop.Title),
		Data:         map[string]any{"proposalId": prop.ID, "status": prop.Status},
	})
}

// execute dispatches on proposal type; returns whether the proposal is
// fully implemented (as opposed to approved pending manual follow-up).
func (g *Governance) execute(ctx context.Context, prop *models.Proposal) (bool, error) {
	switch prop.Type {
	case models.ProposalCommunityUpdate:
		return true, g.executeCommunityUpdate(prop)
	case models.ProposalCommunityDissolution:
		return true, g.executeCommunityDissolution(prop)
	case models.ProposalFundAllocation:
		return true, g.executeFundAllocation(prop)
	case models.ProposalRuleChange:
		return true, g.executeRuleChange(prop)
	case models.ProposalFeature, models.ProposalPartnership:
		// approved only; implementation is a manual follow-up
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized proposal type: %s", prop.Type)
	}
}

type communityUpdateParams struct {
	CommunityID uint64  `json:"communityId"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (g *Governance) executeCommunityUpdate(prop *models.Proposal) error {
	var params communityUpdateParams
	if err := json.Unmarshal([]byte(prop.Params), &params); err != nil {
		return fmt.Errorf("invalid community update params: %w", err)
	}

	return g.db.Transaction(func(tx *gorm.DB) error {
		var before models.Community
		if err := tx.First(&before, "id = ?", params.CommunityID).Error; err != nil {
			return fmt.Errorf("loading community %d: %w", params.CommunityID, err)
		}

		patch := map[string]any{}
		if params.Name != nil {
			patch["name"] = *params.Name
		}
		if params.Description != nil {
			patch["description"] = *params.Description
		}
		if len(patch) == 0 {
			return fmt.Errorf("community update carries no fields")
		}

		if err := tx.Model(models.Community{}).Where("id = ?", params.CommunityID).Updates(patch).Error; err != nil {
			return err
		}

		var after models.Community
		if err := tx.First(&after, "id = ?", params.CommunityID).Error; err != nil {
			return err
		}

		return audit.Append(tx, audit.Entry{
			Kind:        "community.update",
			ActorUID:    prop.AuthorUID,
			SubjectType: "community",
			SubjectID:   params.CommunityID,
			Before:      before,
			After:       after,
		})
	})
}

type communityDissolutionParams struct {
	CommunityID uint64 `json:"communityId"`
}

func (g *Governance) executeCommunityDissolution(prop *models.Proposal) error {
	var params communityDissolutionParams
	if err := json.Unmarshal([]byte(prop.Params), &params); err != nil {
		return fmt.Errorf("invalid dissolution params: %w", err)
	}

	return g.db.Transaction(func(tx *gorm.DB) error {
		var before models.Community
		if err := tx.First(&before, "id = ?", params.CommunityID).Error; err != nil {
			return fmt.Errorf("loading community %d: %w", params.CommunityID, err)
		}

		if err := tx.Delete(&models.CommunityMember{}, "community_id = ?", params.CommunityID).Error; err != nil {
			return fmt.Errorf("detaching members: %w", err)
		}
		if err := tx.Delete(&models.Community{}, "id = ?", params.CommunityID).Error; err != nil {
			return err
		}

		return audit.Append(tx, audit.Entry{
			Kind:        "community.dissolution",
			ActorUID:    prop.AuthorUID,
			SubjectType: "community",
			SubjectID:   params.CommunityID,
			Before:      before,
			After:       nil,
		})
	})
}

type fundAllocationParams struct {
	RecipientUID uint64 `json:"recipientUid"`
	Amount       int64  `json:"amount"`
}

func (g *Governance) executeFundAllocation(prop *models.Proposal) error {
	var params fundAllocationParams
	if err := json.Unmarshal([]byte(prop.Params), &params); err != nil {
		return fmt.Errorf("invalid fund allocation params: %w", err)
	}
	if params.Amount <= 0 {
		return fmt.Errorf("fund allocation amount must be positive, got %d", params.Amount)
	}

	return g.db.Transaction(func(tx *gorm.DB) error {
		// confirm the recipient exists; the credit update alone would
		// silently match zero rows
		var recipient models.UserProfile
		if err := tx.First(&recipient, "uid = ?", params.RecipientUID).Error; err != nil {
			return fmt.Errorf("loading recipient %d: %w", params.RecipientUID, err)
		}
		return g.Profiles.AdjustCredits(tx, params.RecipientUID, params.Amount)
	})
}

type ruleChangeParams struct {
	ProposalReputationGate *int64 `json:"proposalReputationGate,omitempty"`
	VoteCreditGrant        *int64 `json:"voteCreditGrant,omitempty"`
	ModerationQuorum       *int64 `json:"moderationQuorum,omitempty"`
}

func (g *Governance) executeRuleChange(prop *models.Proposal) error {
	var params ruleChangeParams
	if err := json.Unmarshal([]byte(prop.Params), &params); err != nil {
		return fmt.Errorf("invalid rule change params: %w", err)
	}

	return g.db.Transaction(func(tx *gorm.DB) error {
		var before models.GovernanceSettings
		if err := tx.FirstOrCreate(&before, models.GovernanceSettings{ID: 1}).Error; err != nil {
			return err
		}

		patch := map[string]any{}
		if params.ProposalReputationGate != nil {
			patch["proposal_reputation_gate"] = *params.ProposalReputationGate
		}
		if params.VoteCreditGrant != nil {
			patch["vote_credit_grant"] = *params.VoteCreditGrant
		}
		if params.ModerationQuorum != nil {
			patch["moderation_quorum"] = *params.ModerationQuorum
		}
		if len(patch) == 0 {
			return fmt.Errorf("rule change carries no fields")
		}

		if err := tx.Model(models.GovernanceSettings{}).Where("id = ?", before.ID).Updates(patch).Error; err != nil {
			return err
		}

		var after models.GovernanceSettings
		if err := tx.First(&after, "id = ?", before.ID).Error; err != nil {
			return err
		}

		return audit.Append(tx, audit.Entry{
			Kind:        "governance.rule_change",
			ActorUID:    prop.AuthorUID,
			SubjectType: "governance_settings",
			SubjectID:   before.ID,
			Before:      before,
			After:       after,
		})
	})
}
