package audit

import (
	"encoding/json"
	"fmt"

	"github.com/goodturn-social/goodturn/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry describes one privileged mutation. Before and After are snapshotted
// to JSON at append time so the trail survives later edits to the subject.
type Entry struct {
	Kind        string
	ActorUID    uint64
	SubjectType string
	SubjectID   uint64
	Before      any
	After       any
}

// Append writes an audit record on the given transaction, so the trail
// commits or rolls back together with the mutation it describes.
func Append(tx *gorm.DB, e Entry) error {
	before, err := snapshot(e.Before)
	if err != nil {
		return fmt.Errorf("audit before-snapshot: %w", err)
	}
	after, err := snapshot(e.After)
	if err != nil {
		return fmt.Errorf("audit after-snapshot: %w", err)
	}

	rec := models.AuditRecord{
		Ref:         uuid.NewString(),
		Kind:        e.Kind,
		ActorUID:    e.ActorUID,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Before:      before,
		After:       after,
	}
	return tx.Create(&rec).Error
}

func snapshot(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
