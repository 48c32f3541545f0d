package waitlist

import (
	"context"
	"fmt"
	"log"
	"time"

	"booking-engine/internal/audit"
	"booking-engine/internal/clock"
	"booking-engine/internal/model"
	"booking-engine/internal/notification"
	"booking-engine/internal/store"
)

// Windows opens, closes and redeems claim windows on waitlist entries.
type Windows struct {
	queue      *Queue
	trail      *audit.Trail
	clock      clock.Clock
	window     time.Duration
	dispatcher notification.Dispatcher
}

// NewWindows creates a Windows manager. dispatcher may be nil, in which case
// windows still open but nobody is told.
func NewWindows(q *Queue, trail *audit.Trail, clk clock.Clock, window time.Duration, dispatcher notification.Dispatcher) *Windows {
	return &Windows{queue: q, trail: trail, clock: clk, window: window, dispatcher: dispatcher}
}

// Notify opens a claim window on e and queues delivery for after commit.
// Delivery failures never undo the window.
func (w *Windows) Notify(ctx context.Context, tx store.Store, e *model.WaitlistEntry) error {
	before := entrySnapshot(e)

	now := w.clock.Now()
	expiresAt := now.Add(w.window)
	e.NotifiedAt = &now
	e.NotificationExpiresAt = &expiresAt
	if err := tx.SaveEntry(ctx, e); err != nil {
		return err
	}
	if err := w.queue.record(ctx, tx, e, model.AuditNotified, before, entrySnapshot(e), ""); err != nil {
		return err
	}

	job := notification.SlotAvailable{
		EntryID:    e.ID,
		UserID:     e.UserID,
		EventID:    e.EventID,
		Window:     w.window,
		NotifiedAt: now,
		ExpiresAt:  expiresAt,
	}
	tx.AfterCommit(func() {
		if w.dispatcher != nil {
			w.dispatcher.Dispatch(job)
		}
	})
	return nil
}

// Claim redeems userID's open claim window and removes the entry. The caller
// books next; no seat is held for the claimant in between.
func (w *Windows) Claim(ctx context.Context, tx store.Store, eventID, userID string) (*model.WaitlistEntry, error) {
	e, err := tx.GetEntry(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if e.NotifiedAt == nil || e.NotificationExpiresAt == nil {
		return nil, fmt.Errorf("%w: user %s on event %s", model.ErrNotYetNotified, userID, eventID)
	}
	if !w.clock.Now().Before(*e.NotificationExpiresAt) {
		return nil, fmt.Errorf("%w: window for user %s on event %s closed at %s",
			model.ErrExpiredWindow, userID, eventID, e.NotificationExpiresAt.Format(time.RFC3339))
	}
	if err := w.queue.remove(ctx, tx, e, model.AuditConfirmedFromWaitlist, userID); err != nil {
		return nil, err
	}
	return e, nil
}

// Lapse closes an ended claim window. The entry keeps its ticket, so it is
// first in line for the next offer.
func (w *Windows) Lapse(ctx context.Context, tx store.Store, e *model.WaitlistEntry) error {
	before := entrySnapshot(e)
	e.NotifiedAt = nil
	e.NotificationExpiresAt = nil
	if err := tx.SaveEntry(ctx, e); err != nil {
		return err
	}
	return w.queue.record(ctx, tx, e, model.AuditExpired, before, entrySnapshot(e), "")
}

// ProcessEventCapacity closes the event's lapsed windows, then offers every
// free place that is not already covered by an open window, head of the
// queue first. It reports how many offers it made.
func (w *Windows) ProcessEventCapacity(ctx context.Context, tx store.Store, ev *model.Event) (int, error) {
	now := w.clock.Now()

	lapsed, err := tx.ListLapsedWindows(ctx, ev.ID, now)
	if err != nil {
		return 0, err
	}
	for i := range lapsed {
		if err := w.Lapse(ctx, tx, &lapsed[i]); err != nil {
			return 0, err
		}
	}

	if ev.Available <= 0 {
		return 0, nil
	}
	open, err := tx.CountOpenWindows(ctx, ev.ID, now)
	if err != nil {
		return 0, err
	}

	offered := 0
	for int(open) < ev.Available {
		next, err := w.queue.PeekNext(ctx, tx, ev.ID)
		if err != nil {
			return offered, err
		}
		if next == nil {
			break
		}
		if err := w.Notify(ctx, tx, next); err != nil {
			return offered, err
		}
		open++
		offered++
	}
	if len(lapsed) > 0 || offered > 0 {
		log.Printf("Event %s: %d claim window(s) lapsed, %d offer(s) made, %d place(s) free",
			ev.ID, len(lapsed), offered, ev.Available)
	}
	return offered, nil
}
