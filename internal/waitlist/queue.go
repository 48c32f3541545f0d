// Package waitlist keeps each event's FIFO waitlist and the claim windows
// offered to its head.
package waitlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"booking-engine/internal/audit"
	"booking-engine/internal/clock"
	"booking-engine/internal/model"
	"booking-engine/internal/store"
)

// Queue is the per-event FIFO waitlist. Writes take a transaction that already
// holds the event (see ledger.Serializer).
type Queue struct {
	trail *audit.Trail
	clock clock.Clock
}

// NewQueue creates a Queue.
func NewQueue(trail *audit.Trail, clk clock.Clock) *Queue {
	return &Queue{trail: trail, clock: clk}
}

// Join appends userID to the event's waitlist with the next ticket.
func (q *Queue) Join(ctx context.Context, tx store.Store, ev *model.Event, userID string) (*model.WaitlistEntry, error) {
	if ev.Status != model.EventStatusPublished {
		return nil, fmt.Errorf("%w: event %s is %s", model.ErrConflict, ev.ID, ev.Status)
	}
	if ev.Available > 0 {
		return nil, fmt.Errorf("%w: event %s has %d places available, book directly",
			model.ErrConflict, ev.ID, ev.Available)
	}

	if _, err := tx.GetEntry(ctx, ev.ID, userID); err == nil {
		return nil, fmt.Errorf("%w: user %s is already on the waitlist for event %s", model.ErrConflict, userID, ev.ID)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	if b, err := tx.FindActiveBooking(ctx, ev.ID, userID); err == nil {
		return nil, fmt.Errorf("%w: user %s already holds booking %s for event %s", model.ErrConflict, userID, b.ID, ev.ID)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	last, err := tx.MaxPriority(ctx, ev.ID)
	if err != nil {
		return nil, err
	}

	e := &model.WaitlistEntry{
		ID:        uuid.NewString(),
		EventID:   ev.ID,
		UserID:    userID,
		Priority:  last + 1,
		CreatedAt: q.clock.Now(),
	}
	if err := tx.CreateEntry(ctx, e); err != nil {
		return nil, err
	}
	if err := q.record(ctx, tx, e, model.AuditJoined, nil, entrySnapshot(e), userID); err != nil {
		return nil, err
	}
	return e, nil
}

// Leave removes userID's entry and compacts the tickets behind it.
func (q *Queue) Leave(ctx context.Context, tx store.Store, eventID, userID string) (*model.WaitlistEntry, error) {
	e, err := tx.GetEntry(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if err := q.remove(ctx, tx, e, model.AuditLeft, userID); err != nil {
		return nil, err
	}
	return e, nil
}

// Settle removes userID's entry once they hold a booking for the event,
// whether or not they claimed first. It reports whether an entry was removed.
func (q *Queue) Settle(ctx context.Context, tx store.Store, eventID, userID string) (bool, error) {
	e, err := tx.GetEntry(ctx, eventID, userID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := q.remove(ctx, tx, e, model.AuditConfirmedFromWaitlist, userID); err != nil {
		return false, err
	}
	return true, nil
}

// PeekNext returns the earliest entry not yet offered a slot, or nil.
func (q *Queue) PeekNext(ctx context.Context, s store.Store, eventID string) (*model.WaitlistEntry, error) {
	e, err := s.PeekNext(ctx, eventID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// position is e's 1-based place in line.
func (q *Queue) position(ctx context.Context, s store.Store, e *model.WaitlistEntry) (int, error) {
	ahead, err := s.CountAhead(ctx, e.EventID, e.Priority)
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

// Status summarises userID's entry for display.
func (q *Queue) Status(ctx context.Context, s store.Store, eventID, userID string) (*model.WaitlistStatus, error) {
	e, err := s.GetEntry(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	position, err := q.position(ctx, s, e)
	if err != nil {
		return nil, err
	}
	total, err := s.CountEntries(ctx, eventID)
	if err != nil {
		return nil, err
	}

	status := &model.WaitlistStatus{
		EventID:      eventID,
		UserID:       userID,
		Position:     position,
		TotalInQueue: int(total),
		Status:       model.WaitlistWaiting,
	}
	if e.Notified() {
		status.NotificationExpiresAt = e.NotificationExpiresAt
		if e.WindowOpen(q.clock.Now()) {
			status.Notified = true
			status.Status = model.WaitlistNotified
		} else {
			status.Status = model.WaitlistWindowExpired
		}
	}
	return status, nil
}

func (q *Queue) remove(ctx context.Context, tx store.Store, e *model.WaitlistEntry, action model.AuditAction, actorID string) error {
	if err := tx.DeleteEntry(ctx, e); err != nil {
		return err
	}
	return q.record(ctx, tx, e, action, entrySnapshot(e), nil, actorID)
}

func (q *Queue) record(ctx context.Context, tx store.Store, e *model.WaitlistEntry, action model.AuditAction, before, after any, actorID string) error {
	return q.trail.Record(ctx, tx, audit.Entry{
		SubjectType: model.SubjectWaitlistEntry,
		SubjectID:   e.ID,
		EventID:     e.EventID,
		Action:      action,
		Old:         before,
		New:         after,
		ActorID:     actorID,
	})
}

func entrySnapshot(e *model.WaitlistEntry) map[string]any {
	snap := map[string]any{
		"user_id":  e.UserID,
		"priority": e.Priority,
	}
	if e.NotifiedAt != nil {
		snap["notified_at"] = e.NotifiedAt
	}
	if e.NotificationExpiresAt != nil {
		snap["notification_expires_at"] = e.NotificationExpiresAt
	}
	return snap
}
