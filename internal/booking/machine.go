// Package booking implements the booking lifecycle:
//
//	PENDING   -> CONFIRMED | CANCELLED | EXPIRED
//	CONFIRMED -> CANCELLED | COMPLETED | NO_SHOW
//
// CANCELLED, EXPIRED, COMPLETED and NO_SHOW are terminal. Every method runs
// inside a transaction that already holds the event (see ledger.Serializer).
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"booking-engine/internal/audit"
	"booking-engine/internal/clock"
	"booking-engine/internal/ledger"
	"booking-engine/internal/model"
	"booking-engine/internal/store"
)

// Transition describes a committed-to-be status change.
type Transition struct {
	Booking  *model.Booking
	Event    *model.Event
	From     model.BookingStatus // empty on creation
	To       model.BookingStatus
	ActorID  string
	Released int // capacity units returned to the ledger
}

// Hook runs after a transition inside the same transaction. A hook error
// rolls the transition back.
type Hook func(ctx context.Context, tx store.Store, t Transition) error

// Machine drives booking transitions against the capacity ledger.
type Machine struct {
	ledger *ledger.Ledger
	trail  *audit.Trail
	clock  clock.Clock
	hold   time.Duration
	hooks  []Hook
}

// NewMachine creates a Machine. hold is how long a PENDING booking keeps its seat.
func NewMachine(l *ledger.Ledger, trail *audit.Trail, clk clock.Clock, hold time.Duration) *Machine {
	return &Machine{ledger: l, trail: trail, clock: clk, hold: hold}
}

// OnTransition appends h to the post-transition hook list.
func (m *Machine) OnTransition(h Hook) {
	m.hooks = append(m.hooks, h)
}

// Create admits userID to ev and records a PENDING booking holding one seat.
func (m *Machine) Create(ctx context.Context, tx store.Store, ev *model.Event, userID string) (*model.Booking, error) {
	if ev.Status != model.EventStatusPublished {
		return nil, fmt.Errorf("%w: event %s is %s", model.ErrConflict, ev.ID, ev.Status)
	}

	if existing, err := tx.FindActiveBooking(ctx, ev.ID, userID); err == nil {
		return nil, fmt.Errorf("%w: user %s already holds booking %s for event %s",
			model.ErrConflict, userID, existing.ID, ev.ID)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	admitted, err := m.ledger.TryAdmit(ctx, tx, ev)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, fmt.Errorf("%w: event %s is full", model.ErrCapacityExceeded, ev.ID)
	}

	now := m.clock.Now()
	expiresAt := now.Add(m.hold)
	paymentStatus := model.PaymentPending
	if ev.IsFree() {
		paymentStatus = model.PaymentNotRequired
	}

	b := &model.Booking{
		ID:            uuid.NewString(),
		EventID:       ev.ID,
		UserID:        userID,
		Status:        model.BookingPending,
		Amount:        ev.Price(),
		Currency:      ev.Currency,
		PaymentStatus: paymentStatus,
		ExpiresAt:     &expiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.CreateBooking(ctx, b); err != nil {
		return nil, err
	}

	if err := m.record(ctx, tx, b, model.AuditCreated, nil, b, userID); err != nil {
		return nil, err
	}
	if err := m.fire(ctx, tx, Transition{Booking: b, Event: ev, To: model.BookingPending, ActorID: userID}); err != nil {
		return nil, err
	}
	return b, nil
}

// Confirm moves a PENDING booking to CONFIRMED once it is free or paid.
func (m *Machine) Confirm(ctx context.Context, tx store.Store, ev *model.Event, b *model.Booking, actorID string) error {
	if b.Status != model.BookingPending {
		return fmt.Errorf("%w: booking %s is %s, only PENDING bookings can be confirmed",
			model.ErrInvalidTransition, b.ID, b.Status)
	}
	if b.Amount != 0 && b.PaymentStatus != model.PaymentSucceeded {
		return fmt.Errorf("%w: booking %s has payment status %s",
			model.ErrInvalidTransition, b.ID, b.PaymentStatus)
	}
	return m.transition(ctx, tx, ev, b, model.BookingConfirmed, model.AuditConfirmed, actorID, 0, "")
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED and returns its seat.
func (m *Machine) Cancel(ctx context.Context, tx store.Store, ev *model.Event, b *model.Booking, actorID, reason string) error {
	if !b.Status.Active() {
		return fmt.Errorf("%w: booking %s is already %s", model.ErrInvalidTransition, b.ID, b.Status)
	}
	return m.transition(ctx, tx, ev, b, model.BookingCancelled, model.AuditCancelled, actorID, 1, reason)
}

// Expire moves a PENDING booking whose hold has ended to EXPIRED and returns
// its seat. Anything else is left alone and reported as false, so replays
// are harmless.
func (m *Machine) Expire(ctx context.Context, tx store.Store, ev *model.Event, b *model.Booking) (bool, error) {
	if b.Status != model.BookingPending || b.ExpiresAt == nil || !b.ExpiresAt.Before(m.clock.Now()) {
		return false, nil
	}
	if err := m.transition(ctx, tx, ev, b, model.BookingExpired, model.AuditExpired, "", 1, ""); err != nil {
		return false, err
	}
	return true, nil
}

// Finish records the post-event outcome of a CONFIRMED booking.
func (m *Machine) Finish(ctx context.Context, tx store.Store, ev *model.Event, b *model.Booking, attended bool) error {
	if b.Status != model.BookingConfirmed {
		return fmt.Errorf("%w: booking %s is %s, only CONFIRMED bookings can be finished",
			model.ErrInvalidTransition, b.ID, b.Status)
	}
	to := model.BookingNoShow
	if attended {
		to = model.BookingCompleted
	}
	return m.transition(ctx, tx, ev, b, to, model.AuditStatusChanged, "", 0, "")
}

// AttachPayment links the payment collaborator's id to a PENDING booking.
func (m *Machine) AttachPayment(ctx context.Context, tx store.Store, b *model.Booking, paymentID, actorID string) error {
	if b.PaymentID != nil && *b.PaymentID == paymentID {
		return nil
	}
	if b.Status != model.BookingPending {
		return fmt.Errorf("%w: booking %s is %s", model.ErrInvalidTransition, b.ID, b.Status)
	}
	if b.PaymentStatus == model.PaymentNotRequired {
		return fmt.Errorf("%w: booking %s does not require payment", model.ErrInvalidTransition, b.ID)
	}
	if b.PaymentID != nil {
		return fmt.Errorf("%w: booking %s is already linked to payment %s", model.ErrConflict, b.ID, *b.PaymentID)
	}
	if other, err := tx.GetBookingByPaymentID(ctx, paymentID); err == nil {
		return fmt.Errorf("%w: payment %s already belongs to booking %s", model.ErrConflict, paymentID, other.ID)
	} else if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	b.PaymentID = &paymentID
	b.UpdatedAt = m.clock.Now()
	if err := tx.SaveBooking(ctx, b); err != nil {
		return err
	}
	return m.record(ctx, tx, b, model.AuditPaymentUpdated,
		nil, map[string]any{"payment_id": paymentID, "payment_status": b.PaymentStatus}, actorID)
}

// ApplyPaymentStatus stores a payment signal. SUCCEEDED on a PENDING booking
// also confirms it; capacity was reserved at creation so nothing is admitted.
// Terminal bookings are never modified: late signals are acknowledged and logged.
func (m *Machine) ApplyPaymentStatus(ctx context.Context, tx store.Store, ev *model.Event, b *model.Booking, status model.PaymentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown payment status %q", model.ErrInvalidTransition, status)
	}
	if b.PaymentStatus == status {
		return nil
	}
	if b.Status.Terminal() {
		log.Printf("Ignoring payment status %s for booking %s, which is already %s", status, b.ID, b.Status)
		return nil
	}

	old := b.PaymentStatus
	b.PaymentStatus = status
	b.UpdatedAt = m.clock.Now()
	if err := tx.SaveBooking(ctx, b); err != nil {
		return err
	}
	if err := m.record(ctx, tx, b, model.AuditPaymentUpdated,
		map[string]any{"payment_status": old}, map[string]any{"payment_status": status}, ""); err != nil {
		return err
	}

	if status == model.PaymentSucceeded && b.Status == model.BookingPending {
		return m.transition(ctx, tx, ev, b, model.BookingConfirmed, model.AuditConfirmed, "", 0, "")
	}
	return nil
}

// transition applies a status change, returns released seats to the ledger,
// writes one audit record and runs the hooks.
func (m *Machine) transition(ctx context.Context, tx store.Store, ev *model.Event, b *model.Booking,
	to model.BookingStatus, action model.AuditAction, actorID string, release int, reason string) error {
	from := b.Status
	before := statusSnapshot(b)

	b.Status = to
	if reason != "" {
		b.CancellationReason = reason
	}
	b.ExpiresAt = nil
	b.UpdatedAt = m.clock.Now()
	if err := tx.SaveBooking(ctx, b); err != nil {
		return err
	}
	if err := m.ledger.Release(ctx, tx, ev, release); err != nil {
		return err
	}
	if err := m.record(ctx, tx, b, action, before, statusSnapshot(b), actorID); err != nil {
		return err
	}
	return m.fire(ctx, tx, Transition{Booking: b, Event: ev, From: from, To: to, ActorID: actorID, Released: release})
}

func (m *Machine) fire(ctx context.Context, tx store.Store, t Transition) error {
	for _, h := range m.hooks {
		if err := h(ctx, tx, t); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) record(ctx context.Context, tx store.Store, b *model.Booking, action model.AuditAction, before, after any, actorID string) error {
	return m.trail.Record(ctx, tx, audit.Entry{
		SubjectType: model.SubjectBooking,
		SubjectID:   b.ID,
		EventID:     b.EventID,
		Action:      action,
		Old:         before,
		New:         after,
		ActorID:     actorID,
	})
}

func statusSnapshot(b *model.Booking) map[string]any {
	snap := map[string]any{
		"status":         b.Status,
		"payment_status": b.PaymentStatus,
	}
	if b.ExpiresAt != nil {
		snap["expires_at"] = b.ExpiresAt
	}
	if b.CancellationReason != "" {
		snap["cancellation_reason"] = b.CancellationReason
	}
	return snap
}
