package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"booking-engine/internal/db"
	"booking-engine/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newSQLiteStore(t *testing.T) Store {
	gormDB, err := db.OpenInMemory()
	require.NoError(t, err)
	return NewGormStore(gormDB)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestGormStore_DeleteEntryCompaction(t *testing.T) {
	entry := &model.WaitlistEntry{ID: "w-2", EventID: "ev-1", UserID: "u-2", Priority: 2}

	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedErr      error
	}{
		{
			name: "Entry removed, later tickets shift down",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "waitlist_entries" WHERE id = $1`)).
					WithArgs("w-2").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`UPDATE "waitlist_entries" SET "priority"=-\(priority - 1\) WHERE event_id = \$1 AND priority > \$2`).
					WithArgs("ev-1", 2).
					WillReturnResult(sqlmock.NewResult(0, 3))
				mock.ExpectExec(`UPDATE "waitlist_entries" SET "priority"=-priority WHERE event_id = \$1 AND priority < 0`).
					WithArgs("ev-1").
					WillReturnResult(sqlmock.NewResult(0, 3))
				mock.ExpectCommit()
			},
		},
		{
			name: "Entry already gone rolls back",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "waitlist_entries" WHERE id = $1`)).
					WithArgs("w-2").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			expectedErr: model.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			s := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			err := s.DeleteEntry(context.Background(), entry)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_SetAvailableMissingEvent(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "events" SET "available"=$1,"updated_at"=$2 WHERE id = $3`)).
		WithArgs(4, Any{}, "ev-x").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.SetAvailable(context.Background(), "ev-x", 4)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_AfterCommit(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	t.Run("Runs immediately outside a transaction", func(t *testing.T) {
		ran := false
		s.AfterCommit(func() { ran = true })
		assert.True(t, ran)
	})

	t.Run("Waits for commit", func(t *testing.T) {
		var order []string
		err := s.Transaction(ctx, func(tx Store) error {
			tx.AfterCommit(func() { order = append(order, "callback") })
			order = append(order, "body")
			return tx.CreateEvent(ctx, &model.Event{Title: "Concert", Capacity: 2})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"body", "callback"}, order)
	})

	t.Run("Dropped on rollback", func(t *testing.T) {
		ran := false
		boom := errors.New("boom")
		err := s.Transaction(ctx, func(tx Store) error {
			tx.AfterCommit(func() { ran = true })
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, ran)
	})

	t.Run("Nested transaction joins the outer one", func(t *testing.T) {
		ran := 0
		err := s.Transaction(ctx, func(tx Store) error {
			return tx.Transaction(ctx, func(inner Store) error {
				inner.AfterCommit(func() { ran++ })
				assert.Equal(t, 0, ran)
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, ran)
	})
}

func TestGormStore_CreateEventDefaults(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	ev := &model.Event{Title: "Workshop", Capacity: 3}
	require.NoError(t, s.CreateEvent(ctx, ev))
	assert.NotEmpty(t, ev.ID)

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Available)
	assert.Equal(t, model.EventStatusPublished, got.Status)

	assert.Error(t, s.CreateEvent(ctx, &model.Event{Title: "Empty", Capacity: 0}))

	_, err = s.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGormStore_WaitlistQueries(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	ev := &model.Event{Title: "Talk", Capacity: 1}
	require.NoError(t, s.CreateEvent(ctx, ev))

	join := func(user string, priority int) *model.WaitlistEntry {
		e := &model.WaitlistEntry{ID: uuid.NewString(), EventID: ev.ID, UserID: user, Priority: priority, CreatedAt: t0}
		require.NoError(t, s.CreateEntry(ctx, e))
		return e
	}
	a := join("alice", 1)
	b := join("bob", 2)
	join("carol", 3)
	join("dave", 4)

	top, err := s.MaxPriority(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, top)

	// alice holds an open window, bob's has lapsed.
	open, lapsed := t0.Add(10*time.Minute), t0
	a.NotifiedAt, a.NotificationExpiresAt = &t0, &open
	require.NoError(t, s.SaveEntry(ctx, a))
	b.NotifiedAt, b.NotificationExpiresAt = &t0, &lapsed
	require.NoError(t, s.SaveEntry(ctx, b))

	next, err := s.PeekNext(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", next.UserID)

	n, err := s.CountOpenWindows(ctx, ev.ID, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	lapsedEntries, err := s.ListLapsedWindows(ctx, ev.ID, t0)
	require.NoError(t, err)
	require.Len(t, lapsedEntries, 1)
	assert.Equal(t, "bob", lapsedEntries[0].UserID)

	ids, err := s.EventsWithLapsedWindows(ctx, t0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{ev.ID}, ids)

	// Removing bob closes the gap.
	require.NoError(t, s.DeleteEntry(ctx, b))
	entries, err := s.ListEntries(ctx, ev.ID)
	require.NoError(t, err)
	var users []string
	var priorities []int
	for _, e := range entries {
		users = append(users, e.UserID)
		priorities = append(priorities, e.Priority)
	}
	assert.Equal(t, []string{"alice", "carol", "dave"}, users)
	assert.Equal(t, []int{1, 2, 3}, priorities)

	ahead, err := s.CountAhead(ctx, ev.ID, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ahead)

	// Capacity frees up while carol and dave are still unoffered.
	require.NoError(t, s.SetAvailable(ctx, ev.ID, 1))
	ids, err = s.EventsWithOpenCapacity(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{ev.ID}, ids)
}

func TestGormStore_BookingQueries(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	ev := &model.Event{Title: "Gala", Capacity: 5}
	require.NoError(t, s.CreateEvent(ctx, ev))

	book := func(user string, status model.BookingStatus, expiresAt *time.Time) *model.Booking {
		b := &model.Booking{
			ID:            uuid.NewString(),
			EventID:       ev.ID,
			UserID:        user,
			Status:        status,
			PaymentStatus: model.PaymentPending,
			ExpiresAt:     expiresAt,
			CreatedAt:     t0,
			UpdatedAt:     t0,
		}
		require.NoError(t, s.CreateBooking(ctx, b))
		return b
	}
	stale, fresh := t0.Add(-time.Minute), t0.Add(time.Minute)
	expired := book("alice", model.BookingPending, &stale)
	book("bob", model.BookingPending, &fresh)
	book("carol", model.BookingConfirmed, nil)
	book("dave", model.BookingCancelled, nil)

	due, err := s.ListExpiredPending(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.ID, due[0].ID)

	active, err := s.CountActiveBookings(ctx, ev.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, active)

	_, err = s.FindActiveBooking(ctx, ev.ID, "dave")
	assert.ErrorIs(t, err, model.ErrNotFound)

	paymentID := "pay-1"
	expired.PaymentID = &paymentID
	require.NoError(t, s.SaveBooking(ctx, expired))
	got, err := s.GetBookingByPaymentID(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, expired.ID, got.ID)
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
