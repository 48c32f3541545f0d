// Package engine is the booking and waitlist coordination surface. Every write
// runs under the per-event serializer, and capacity released by a cancel or an
// expiry is offered to the waitlist in the same transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-engine/internal/audit"
	"booking-engine/internal/booking"
	"booking-engine/internal/clock"
	"booking-engine/internal/ledger"
	"booking-engine/internal/model"
	"booking-engine/internal/notification"
	"booking-engine/internal/store"
	"booking-engine/internal/waitlist"
)

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	Hold        time.Duration // how long a PENDING booking keeps its seat
	ClaimWindow time.Duration
	Clock       clock.Clock
	Dispatcher  notification.Dispatcher
}

const (
	DefaultHold        = 30 * time.Minute
	DefaultClaimWindow = 30 * time.Minute
)

// Engine implements the booking and waitlist operations.
type Engine struct {
	store      store.Store
	serializer *ledger.Serializer
	ledger     *ledger.Ledger
	machine    *booking.Machine
	queue      *waitlist.Queue
	windows    *waitlist.Windows
	trail      *audit.Trail
}

// New wires an Engine over s.
func New(s store.Store, opts Options) *Engine {
	if opts.Hold <= 0 {
		opts.Hold = DefaultHold
	}
	if opts.ClaimWindow <= 0 {
		opts.ClaimWindow = DefaultClaimWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	trail := audit.NewTrail(s, opts.Clock)
	l := ledger.New()
	queue := waitlist.NewQueue(trail, opts.Clock)

	e := &Engine{
		store:      s,
		serializer: ledger.NewSerializer(s),
		ledger:     l,
		machine:    booking.NewMachine(l, trail, opts.Clock, opts.Hold),
		queue:      queue,
		windows:    waitlist.NewWindows(queue, trail, opts.Clock, opts.ClaimWindow, opts.Dispatcher),
		trail:      trail,
	}
	e.machine.OnTransition(e.settleWaitlistEntry)
	e.machine.OnTransition(e.offerReleasedCapacity)
	return e
}

// settleWaitlistEntry drops the new booking holder's waitlist entry, so a
// user who books without claiming stops holding a window and a ticket.
func (e *Engine) settleWaitlistEntry(ctx context.Context, tx store.Store, t booking.Transition) error {
	if t.From != "" {
		return nil
	}
	removed, err := e.queue.Settle(ctx, tx, t.Event.ID, t.Booking.UserID)
	if err != nil || !removed {
		return err
	}
	_, err = e.windows.ProcessEventCapacity(ctx, tx, t.Event)
	return err
}

// offerReleasedCapacity cascades freed seats to the waitlist before the
// releasing transaction commits.
func (e *Engine) offerReleasedCapacity(ctx context.Context, tx store.Store, t booking.Transition) error {
	if t.Released <= 0 {
		return nil
	}
	_, err := e.windows.ProcessEventCapacity(ctx, tx, t.Event)
	return err
}

// CreateBooking admits userID to the event with a PENDING booking.
func (e *Engine) CreateBooking(ctx context.Context, eventID, userID string) (*model.Booking, error) {
	var b *model.Booking
	err := e.serializer.Do(ctx, eventID, func(tx store.Store, ev *model.Event) error {
		var err error
		b, err = e.machine.Create(ctx, tx, ev, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CancelBooking cancels a PENDING or CONFIRMED booking. An empty userID is an
// organizer or system action.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, userID, reason string) (*model.Booking, error) {
	return e.withBooking(ctx, bookingID, userID, func(tx store.Store, ev *model.Event, b *model.Booking) error {
		return e.machine.Cancel(ctx, tx, ev, b, userID, reason)
	})
}

// ConfirmBooking confirms a free or paid PENDING booking.
func (e *Engine) ConfirmBooking(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	return e.withBooking(ctx, bookingID, userID, func(tx store.Store, ev *model.Event, b *model.Booking) error {
		return e.machine.Confirm(ctx, tx, ev, b, userID)
	})
}

// AttachPayment links a payment id to a PENDING booking.
func (e *Engine) AttachPayment(ctx context.Context, bookingID, userID, paymentID string) (*model.Booking, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", model.ErrInvalidTransition)
	}
	return e.withBooking(ctx, bookingID, userID, func(tx store.Store, _ *model.Event, b *model.Booking) error {
		return e.machine.AttachPayment(ctx, tx, b, paymentID, userID)
	})
}

// OnPaymentStatusChanged applies a payment collaborator signal.
func (e *Engine) OnPaymentStatusChanged(ctx context.Context, paymentID string, status model.PaymentStatus) error {
	b, err := e.store.GetBookingByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	_, err = e.withBooking(ctx, b.ID, "", func(tx store.Store, ev *model.Event, b *model.Booking) error {
		return e.machine.ApplyPaymentStatus(ctx, tx, ev, b, status)
	})
	return err
}

// ExpireBookings expires every listed booking whose hold has ended. Each id is
// handled in its own transaction; failures are joined and do not stop the
// rest. It returns how many bookings actually expired.
func (e *Engine) ExpireBookings(ctx context.Context, bookingIDs []string) (int, error) {
	var (
		expired int
		errs    []error
	)
	for _, id := range bookingIDs {
		var changed bool
		_, err := e.withBooking(ctx, id, "", func(tx store.Store, ev *model.Event, b *model.Booking) error {
			var err error
			changed, err = e.machine.Expire(ctx, tx, ev, b)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("expire booking %s: %w", id, err))
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

// MarkAttendance records whether the holder of a CONFIRMED booking attended.
func (e *Engine) MarkAttendance(ctx context.Context, bookingID string, attended bool) (*model.Booking, error) {
	return e.withBooking(ctx, bookingID, "", func(tx store.Store, ev *model.Event, b *model.Booking) error {
		return e.machine.Finish(ctx, tx, ev, b, attended)
	})
}

// GetBooking reads a booking. A non-empty userID must own it.
func (e *Engine) GetBooking(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(b, userID); err != nil {
		return nil, err
	}
	return b, nil
}

// JoinWaitlist puts userID at the back of a full event's waitlist.
func (e *Engine) JoinWaitlist(ctx context.Context, eventID, userID string) (*model.WaitlistStatus, error) {
	var status *model.WaitlistStatus
	err := e.serializer.Do(ctx, eventID, func(tx store.Store, ev *model.Event) error {
		if _, err := e.queue.Join(ctx, tx, ev, userID); err != nil {
			return err
		}
		var err error
		status, err = e.queue.Status(ctx, tx, eventID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// LeaveWaitlist removes userID from the waitlist. An offer the user held moves
// on to the next in line.
func (e *Engine) LeaveWaitlist(ctx context.Context, eventID, userID string) error {
	return e.serializer.Do(ctx, eventID, func(tx store.Store, ev *model.Event) error {
		if _, err := e.queue.Leave(ctx, tx, eventID, userID); err != nil {
			return err
		}
		_, err := e.windows.ProcessEventCapacity(ctx, tx, ev)
		return err
	})
}

// GetWaitlistStatus reports userID's place and offer state.
func (e *Engine) GetWaitlistStatus(ctx context.Context, eventID, userID string) (*model.WaitlistStatus, error) {
	return e.queue.Status(ctx, e.store, eventID, userID)
}

// ClaimWaitlistSlot redeems an open claim window. The user books with
// CreateBooking afterwards; the place is not held for them in between.
func (e *Engine) ClaimWaitlistSlot(ctx context.Context, eventID, userID string) error {
	return e.serializer.Do(ctx, eventID, func(tx store.Store, _ *model.Event) error {
		_, err := e.windows.Claim(ctx, tx, eventID, userID)
		return err
	})
}

// ProcessEventCapacity closes lapsed claim windows on the event and offers its
// free places to the waitlist. It returns the number of offers made.
func (e *Engine) ProcessEventCapacity(ctx context.Context, eventID string) (int, error) {
	var offered int
	err := e.serializer.Do(ctx, eventID, func(tx store.Store, ev *model.Event) error {
		var err error
		offered, err = e.windows.ProcessEventCapacity(ctx, tx, ev)
		return err
	})
	return offered, err
}

// CheckDrift compares the event's ledger with the bookings holding capacity.
// Zero means they agree.
func (e *Engine) CheckDrift(ctx context.Context, eventID string) (int, error) {
	var drift int
	err := e.serializer.Do(ctx, eventID, func(tx store.Store, ev *model.Event) error {
		var err error
		drift, err = e.ledger.Drift(ctx, tx, ev)
		return err
	})
	return drift, err
}

// GetEvent reads the event, including its current availability.
func (e *Engine) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	return e.store.GetEvent(ctx, eventID)
}

// GetAuditTrail returns every record written for a booking or waitlist entry.
func (e *Engine) GetAuditTrail(ctx context.Context, subjectID string) ([]model.AuditLog, error) {
	return e.trail.List(ctx, subjectID)
}

// withBooking locks the booking's event, re-reads the booking inside the
// transaction and hands both to fn. The returned booking reflects fn's changes.
func (e *Engine) withBooking(ctx context.Context, bookingID, actorID string,
	fn func(tx store.Store, ev *model.Event, b *model.Booking) error) (*model.Booking, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(b, actorID); err != nil {
		return nil, err
	}

	err = e.serializer.Do(ctx, b.EventID, func(tx store.Store, ev *model.Event) error {
		fresh, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		b = fresh
		return fn(tx, ev, fresh)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// checkOwner hides other users' bookings behind NotFound.
func checkOwner(b *model.Booking, userID string) error {
	if userID != "" && b.UserID != userID {
		return fmt.Errorf("%w: booking %s", model.ErrNotFound, b.ID)
	}
	return nil
}
