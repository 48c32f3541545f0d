package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-engine/internal/clock"
	"booking-engine/internal/db"
	"booking-engine/internal/model"
	"booking-engine/internal/notification"
	"booking-engine/internal/store"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []notification.SlotAvailable
}

func (d *recordingDispatcher) Dispatch(job notification.SlotAvailable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

func (d *recordingDispatcher) usersNotified() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	users := make([]string, 0, len(d.jobs))
	for _, j := range d.jobs {
		users = append(users, j.UserID)
	}
	return users
}

type harness struct {
	ctx        context.Context
	engine     *Engine
	store      store.Store
	clock      *clock.Fake
	dispatcher *recordingDispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gormDB, err := db.OpenInMemory()
	require.NoError(t, err)

	s := store.NewGormStore(gormDB)
	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	d := &recordingDispatcher{}
	return &harness{
		ctx:        context.Background(),
		engine:     New(s, Options{Clock: clk, Dispatcher: d}),
		store:      s,
		clock:      clk,
		dispatcher: d,
	}
}

func (h *harness) event(t *testing.T, capacity int, price int64) *model.Event {
	t.Helper()
	ev := &model.Event{Title: "Concert", Capacity: capacity, Currency: "EUR"}
	if price > 0 {
		ev.PriceMinor = &price
	}
	require.NoError(t, h.store.CreateEvent(h.ctx, ev))
	return ev
}

func (h *harness) available(t *testing.T, eventID string) int {
	t.Helper()
	ev, err := h.engine.GetEvent(h.ctx, eventID)
	require.NoError(t, err)
	return ev.Available
}

// assertBalanced checks available + active bookings == capacity.
func (h *harness) assertBalanced(t *testing.T, eventID string) {
	t.Helper()
	ev, err := h.store.GetEvent(h.ctx, eventID)
	require.NoError(t, err)
	active, err := h.store.CountActiveBookings(h.ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, ev.Capacity, ev.Available+int(active), "ledger out of balance")
	assert.GreaterOrEqual(t, ev.Available, 0)
	assert.LessOrEqual(t, ev.Available, ev.Capacity)
}

func actions(trail []model.AuditLog) []model.AuditAction {
	out := make([]model.AuditAction, 0, len(trail))
	for _, a := range trail {
		out = append(out, a.Action)
	}
	return out
}

func TestCreateBooking(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 2, 0)

	b, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, model.PaymentNotRequired, b.PaymentStatus)
	assert.Equal(t, int64(0), b.Amount)
	require.NotNil(t, b.ExpiresAt)
	assert.True(t, b.ExpiresAt.Equal(h.clock.Now().Add(DefaultHold)))
	assert.Equal(t, 1, h.available(t, ev.ID))

	t.Run("second active booking conflicts", func(t *testing.T) {
		_, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
		assert.ErrorIs(t, err, model.ErrConflict)
		assert.Equal(t, 1, h.available(t, ev.ID))
	})

	t.Run("full event is capacity exceeded", func(t *testing.T) {
		_, err := h.engine.CreateBooking(h.ctx, ev.ID, "bob")
		require.NoError(t, err)
		_, err = h.engine.CreateBooking(h.ctx, ev.ID, "carol")
		assert.ErrorIs(t, err, model.ErrCapacityExceeded)
		assert.Equal(t, 0, h.available(t, ev.ID))
	})

	t.Run("unknown event is not found", func(t *testing.T) {
		_, err := h.engine.CreateBooking(h.ctx, "missing", "alice")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("rebooking after cancel is allowed", func(t *testing.T) {
		_, err := h.engine.CancelBooking(h.ctx, b.ID, "alice", "changed plans")
		require.NoError(t, err)
		again, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
		require.NoError(t, err)
		assert.NotEqual(t, b.ID, again.ID)
	})

	h.assertBalanced(t, ev.ID)
}

func TestCreateBooking_LocksPrice(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 1, 2500)

	b, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), b.Amount)
	assert.Equal(t, "EUR", b.Currency)
	assert.Equal(t, model.PaymentPending, b.PaymentStatus)

	// A later price change does not touch the booking.
	require.NoError(t, h.store.DB().Model(&model.Event{}).Where("id = ?", ev.ID).Update("price_minor", 4000).Error)
	got, err := h.engine.GetBooking(h.ctx, b.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.Amount)
}

func TestCancelBooking(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 1, 0)
	b, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
	require.NoError(t, err)

	t.Run("other users get not found", func(t *testing.T) {
		_, err := h.engine.CancelBooking(h.ctx, b.ID, "mallory", "")
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.Equal(t, 0, h.available(t, ev.ID))
	})

	cancelled, err := h.engine.CancelBooking(h.ctx, b.ID, "alice", "sick")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Equal(t, "sick", cancelled.CancellationReason)
	assert.Nil(t, cancelled.ExpiresAt)
	assert.Equal(t, 1, h.available(t, ev.ID))

	t.Run("terminal bookings cannot be cancelled again", func(t *testing.T) {
		_, err := h.engine.CancelBooking(h.ctx, b.ID, "alice", "")
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
		assert.Equal(t, 1, h.available(t, ev.ID))
	})

	trail, err := h.engine.GetAuditTrail(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.AuditAction{model.AuditCreated, model.AuditCancelled}, actions(trail))
	require.NotNil(t, trail[1].ActorID)
	assert.Equal(t, "alice", *trail[1].ActorID)

	var before, after map[string]any
	require.NoError(t, json.Unmarshal(trail[1].OldValue, &before))
	require.NoError(t, json.Unmarshal(trail[1].NewValue, &after))
	assert.Equal(t, "PENDING", before["status"])
	assert.NotContains(t, before, "cancellation_reason")
	assert.Equal(t, "CANCELLED", after["status"])
	assert.Equal(t, "sick", after["cancellation_reason"])
}

func TestConfirmBooking(t *testing.T) {
	t.Run("free booking confirms", func(t *testing.T) {
		h := newHarness(t)
		ev := h.event(t, 1, 0)
		b, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
		require.NoError(t, err)

		confirmed, err := h.engine.ConfirmBooking(h.ctx, b.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, model.BookingConfirmed, confirmed.Status)
		assert.Nil(t, confirmed.ExpiresAt)
		assert.Equal(t, 0, h.available(t, ev.ID))

		_, err = h.engine.ConfirmBooking(h.ctx, b.ID, "alice")
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("unpaid booking does not confirm", func(t *testing.T) {
		h := newHarness(t)
		ev := h.event(t, 1, 1000)
		b, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
		require.NoError(t, err)

		_, err = h.engine.ConfirmBooking(h.ctx, b.ID, "alice")
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})
}

func TestPaymentFlow(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 2, 1500)
	b, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
	require.NoError(t, err)
	other, err := h.engine.CreateBooking(h.ctx, ev.ID, "bob")
	require.NoError(t, err)

	_, err = h.engine.AttachPayment(h.ctx, b.ID, "alice", "pay_1")
	require.NoError(t, err)

	t.Run("payment id belongs to one booking", func(t *testing.T) {
		_, err := h.engine.AttachPayment(h.ctx, other.ID, "bob", "pay_1")
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("unknown payment is not found", func(t *testing.T) {
		err := h.engine.OnPaymentStatusChanged(h.ctx, "pay_x", model.PaymentSucceeded)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	require.NoError(t, h.engine.OnPaymentStatusChanged(h.ctx, "pay_1", model.PaymentFailed))
	got, err := h.engine.GetBooking(h.ctx, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, got.Status)
	assert.Equal(t, model.PaymentFailed, got.PaymentStatus)

	require.NoError(t, h.engine.OnPaymentStatusChanged(h.ctx, "pay_1", model.PaymentSucceeded))
	got, err = h.engine.GetBooking(h.ctx, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.Equal(t, model.PaymentSucceeded, got.PaymentStatus)
	assert.Equal(t, 0, h.available(t, ev.ID), "confirmation must not touch capacity")

	// Redelivered webhook is a no-op.
	require.NoError(t, h.engine.OnPaymentStatusChanged(h.ctx, "pay_1", model.PaymentSucceeded))

	trail, err := h.engine.GetAuditTrail(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.AuditAction{
		model.AuditCreated,
		model.AuditPaymentUpdated, // attach
		model.AuditPaymentUpdated, // failed
		model.AuditPaymentUpdated, // succeeded
		model.AuditConfirmed,
	}, actions(trail))
	assert.Nil(t, trail[4].ActorID)

	h.assertBalanced(t, ev.ID)
}

func TestPaymentSignalOnTerminalBooking(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 1, 1500)
	b, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
	require.NoError(t, err)
	_, err = h.engine.AttachPayment(h.ctx, b.ID, "alice", "pay_late")
	require.NoError(t, err)
	_, err = h.engine.CancelBooking(h.ctx, b.ID, "alice", "changed plans")
	require.NoError(t, err)

	for _, status := range []model.PaymentStatus{model.PaymentSucceeded, model.PaymentRefunded} {
		require.NoError(t, h.engine.OnPaymentStatusChanged(h.ctx, "pay_late", status), status)
	}

	got, err := h.engine.GetBooking(h.ctx, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	assert.Equal(t, model.PaymentPending, got.PaymentStatus)

	trail, err := h.engine.GetAuditTrail(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.AuditAction{
		model.AuditCreated,
		model.AuditPaymentUpdated,
		model.AuditCancelled,
	}, actions(trail))
	assert.Equal(t, 1, h.available(t, ev.ID))
}

func TestExpireBookings_Idempotent(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 2, 0)
	a, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
	require.NoError(t, err)
	b, err := h.engine.CreateBooking(h.ctx, ev.ID, "bob")
	require.NoError(t, err)
	ids := []string{a.ID, b.ID}

	t.Run("holds still running are left alone", func(t *testing.T) {
		n, err := h.engine.ExpireBookings(h.ctx, ids)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	h.clock.Advance(DefaultHold + time.Second)

	n, err := h.engine.ExpireBookings(h.ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, h.available(t, ev.ID))

	n, err = h.engine.ExpireBookings(h.ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, h.available(t, ev.ID))

	for _, id := range ids {
		trail, err := h.engine.GetAuditTrail(h.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []model.AuditAction{model.AuditCreated, model.AuditExpired}, actions(trail))
		assert.Nil(t, trail[1].ActorID)
	}

	t.Run("one bad id does not stop the rest", func(t *testing.T) {
		c, err := h.engine.CreateBooking(h.ctx, ev.ID, "carol")
		require.NoError(t, err)
		h.clock.Advance(DefaultHold + time.Second)

		n, err := h.engine.ExpireBookings(h.ctx, []string{"missing", c.ID})
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.Equal(t, 1, n)
		assert.Equal(t, 2, h.available(t, ev.ID))
	})

	h.assertBalanced(t, ev.ID)
}

func TestMarkAttendance(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 2, 0)
	a, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
	require.NoError(t, err)
	b, err := h.engine.CreateBooking(h.ctx, ev.ID, "bob")
	require.NoError(t, err)

	_, err = h.engine.MarkAttendance(h.ctx, a.ID, true)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "PENDING cannot finish")

	_, err = h.engine.ConfirmBooking(h.ctx, a.ID, "alice")
	require.NoError(t, err)
	_, err = h.engine.ConfirmBooking(h.ctx, b.ID, "bob")
	require.NoError(t, err)

	done, err := h.engine.MarkAttendance(h.ctx, a.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, done.Status)
	missed, err := h.engine.MarkAttendance(h.ctx, b.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.BookingNoShow, missed.Status)

	_, err = h.engine.CancelBooking(h.ctx, a.ID, "", "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCapacityInvariantUnderRandomOperations(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 3, 0)
	rng := rand.New(rand.NewSource(7))

	var bookings []string
	for step := 0; step < 150; step++ {
		switch rng.Intn(4) {
		case 0, 1:
			b, err := h.engine.CreateBooking(h.ctx, ev.ID, fmt.Sprintf("user-%d", rng.Intn(8)))
			if err == nil {
				bookings = append(bookings, b.ID)
			} else if !errors.Is(err, model.ErrConflict) && !errors.Is(err, model.ErrCapacityExceeded) {
				t.Fatalf("step %d: create: %v", step, err)
			}
		case 2:
			if len(bookings) == 0 {
				continue
			}
			_, err := h.engine.CancelBooking(h.ctx, bookings[rng.Intn(len(bookings))], "", "")
			if err != nil && !errors.Is(err, model.ErrInvalidTransition) {
				t.Fatalf("step %d: cancel: %v", step, err)
			}
		case 3:
			h.clock.Advance(time.Duration(rng.Intn(20)) * time.Minute)
			expired, err := h.store.ListExpiredPending(h.ctx, h.clock.Now(), 100)
			require.NoError(t, err)
			ids := make([]string, 0, len(expired))
			for _, b := range expired {
				ids = append(ids, b.ID)
			}
			_, err = h.engine.ExpireBookings(h.ctx, ids)
			require.NoError(t, err)
		}
		h.assertBalanced(t, ev.ID)
	}

	drift, err := h.engine.CheckDrift(h.ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, drift)
}

func TestConcurrentBookingsNeverOvercommit(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 5, 0)
	other := h.event(t, 5, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.CreateBooking(h.ctx, ev.ID, fmt.Sprintf("user-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, model.ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = h.engine.CreateBooking(h.ctx, other.ID, fmt.Sprintf("user-%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, admitted)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 0, h.available(t, ev.ID))
	assert.Equal(t, 0, h.available(t, other.ID))
	h.assertBalanced(t, ev.ID)
	h.assertBalanced(t, other.ID)
}

func TestCheckDrift(t *testing.T) {
	h := newHarness(t)
	ev := h.event(t, 3, 0)
	_, err := h.engine.CreateBooking(h.ctx, ev.ID, "alice")
	require.NoError(t, err)

	drift, err := h.engine.CheckDrift(h.ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, drift)

	require.NoError(t, h.store.SetAvailable(h.ctx, ev.ID, 3))
	drift, err = h.engine.CheckDrift(h.ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, drift)
}
