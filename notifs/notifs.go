package notifs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/goodturn-social/goodturn/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification kinds emitted by the consensus engine.
const (
	KindValidationRequest = "validation.request"
	KindBlockApproved     = "block.approved"
	KindBlockRejected     = "block.rejected"
	KindValidatorReward   = "validator.reward"
	KindJuryDuty          = "jury.duty"
	KindJurorReward       = "juror.reward"
	KindContentWarning    = "content.warning"
	KindProposalApproved  = "proposal.approved"
	KindProposalExecError = "proposal.execution_error"
	KindProposalComment   = "proposal.comment"
	KindCommentReply      = "comment.reply"
)

type Notification struct {
	RecipientUID uint64
	Kind         string
	Title        string
	Body         string
	Data         map[string]any
}

// NotificationManager is the fire-and-forget notification sink. Failures
// are logged, never surfaced to the triggering operation.
type NotificationManager struct {
	db     *gorm.DB
	Logger *slog.Logger
}

func NewNotificationManager(db *gorm.DB) (*NotificationManager, error) {
	if err := db.AutoMigrate(models.NotifRecord{}); err != nil {
		return nil, err
	}

	return &NotificationManager{
		db:     db,
		Logger: slog.Default().With("system", "notifs"),
	}, nil
}

func (nm *NotificationManager) Send(ctx context.Context, n Notification) {
	var data string
	if n.Data != nil {
		b, err := json.Marshal(n.Data)
		if err != nil {
			nm.Logger.Warn("dropping unserializable notification data", "kind", n.Kind, "err", err)
		} else {
			data = string(b)
		}
	}

	rec := models.NotifRecord{
		Ref:          uuid.NewString(),
		RecipientUID: n.RecipientUID,
		Kind:         n.Kind,
		Title:        n.Title,
		Body:         n.Body,
		Data:         data,
	}
	if err := nm.db.Create(&rec).Error; err != nil {
		nm.Logger.Error("failed to persist notification", "kind", n.Kind, "recipient", n.RecipientUID, "err", err)
		return
	}
	notificationsSent.WithLabelValues(n.Kind).Inc()
}

func (nm *NotificationManager) SendAll(ctx context.Context, uids []uint64, n Notification) {
	for _, uid := range uids {
		n.RecipientUID = uid
		nm.Send(ctx, n)
	}
}

func (nm *NotificationManager) ForRecipient(ctx context.Context, uid uint64) ([]models.NotifRecord, error) {
	var out []models.NotifRecord
	if err := nm.db.Order("created_at desc").Find(&out, "recipient_uid = ?", uid).Error; err != nil {
		return nil, err
	}
	return out, nil
}
