// Package audit appends one immutable record per booking or waitlist transition.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"booking-engine/internal/clock"
	"booking-engine/internal/model"
	"booking-engine/internal/store"
)

// Entry describes a transition to be recorded. Old and New are marshalled to
// JSON snapshots; either may be nil.
type Entry struct {
	SubjectType string
	SubjectID   string
	EventID     string
	Action      model.AuditAction
	Old         any
	New         any
	ActorID     string // empty for system-driven transitions
}

// Trail writes and reads audit records. It exposes no update or delete.
type Trail struct {
	store store.Store
	clock clock.Clock
}

// NewTrail creates a Trail.
func NewTrail(s store.Store, clk clock.Clock) *Trail {
	return &Trail{store: s, clock: clk}
}

// Record appends e through tx, so the record commits or rolls back with the
// transition it describes.
func (t *Trail) Record(ctx context.Context, tx store.Store, e Entry) error {
	oldJSON, err := snapshot(e.Old)
	if err != nil {
		return fmt.Errorf("audit %s %s: %w", e.Action, e.SubjectID, err)
	}
	newJSON, err := snapshot(e.New)
	if err != nil {
		return fmt.Errorf("audit %s %s: %w", e.Action, e.SubjectID, err)
	}

	var actor *string
	if e.ActorID != "" {
		a := e.ActorID
		actor = &a
	}

	return tx.AppendAudit(ctx, &model.AuditLog{
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		EventID:     e.EventID,
		Action:      e.Action,
		OldValue:    oldJSON,
		NewValue:    newJSON,
		ActorID:     actor,
		CreatedAt:   t.clock.Now(),
	})
}

// List returns the records for a subject in the order they were written.
func (t *Trail) List(ctx context.Context, subjectID string) ([]model.AuditLog, error) {
	return t.store.ListAudit(ctx, subjectID)
}

func snapshot(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
