// Package ledger owns each event's available-capacity counter and the
// per-event serialization every capacity or waitlist write runs under.
package ledger

import (
	"context"
	"fmt"
	"log"

	"booking-engine/internal/model"
	"booking-engine/internal/store"
)

// Serializer linearizes writes per event: an in-process mutex keyed by event
// id, then a transaction holding the event row FOR UPDATE. Different events
// never share a key.
type Serializer struct {
	store store.Store
	locks *keyedMutex
}

// NewSerializer creates a Serializer over s.
func NewSerializer(s store.Store) *Serializer {
	return &Serializer{store: s, locks: newKeyedMutex()}
}

// Do runs fn with exclusive write access to the event. ev is the locked row;
// fn must use tx for every read and write.
func (s *Serializer) Do(ctx context.Context, eventID string, fn func(tx store.Store, ev *model.Event) error) error {
	unlock := s.locks.Lock(eventID)
	defer unlock()

	return s.store.Transaction(ctx, func(tx store.Store) error {
		ev, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		return fn(tx, ev)
	})
}

// Ledger admits and releases units of capacity on an event locked by a Serializer.
type Ledger struct{}

// New returns a Ledger.
func New() *Ledger {
	return &Ledger{}
}

// TryAdmit takes one unit of capacity if any is left. It reports false,
// without error, when the event is full.
func (l *Ledger) TryAdmit(ctx context.Context, tx store.Store, ev *model.Event) (bool, error) {
	if ev.Available <= 0 {
		return false, nil
	}
	if err := tx.SetAvailable(ctx, ev.ID, ev.Available-1); err != nil {
		return false, fmt.Errorf("admit on event %s: %w", ev.ID, err)
	}
	ev.Available--
	return true, nil
}

// Release returns n units of capacity. An over-release is clamped to the
// event's capacity and logged; it is never surfaced to the caller.
func (l *Ledger) Release(ctx context.Context, tx store.Store, ev *model.Event, n int) error {
	if n <= 0 {
		return nil
	}
	next := ev.Available + n
	if next > ev.Capacity {
		log.Printf("Warning: over-release on event %s: available %d + %d exceeds capacity %d; clamping",
			ev.ID, ev.Available, n, ev.Capacity)
		next = ev.Capacity
	}
	if next == ev.Available {
		return nil
	}
	if err := tx.SetAvailable(ctx, ev.ID, next); err != nil {
		return fmt.Errorf("release on event %s: %w", ev.ID, err)
	}
	ev.Available = next
	return nil
}

// Drift is the difference between the ledger and the bookings that hold
// capacity: zero when available + active == capacity.
func (l *Ledger) Drift(ctx context.Context, tx store.Store, ev *model.Event) (int, error) {
	active, err := tx.CountActiveBookings(ctx, ev.ID)
	if err != nil {
		return 0, err
	}
	return ev.Available + int(active) - ev.Capacity, nil
}
