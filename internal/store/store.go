package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"booking-engine/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// Transaction runs fn inside a database transaction. The Store passed to fn
	// is bound to that transaction; calling Transaction on a bound Store runs
	// fn in the same transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	// AfterCommit registers fn to run once the bound transaction commits.
	// Outside a transaction fn runs immediately.
	AfterCommit(fn func())
	DB() *gorm.DB

	CreateEvent(ctx context.Context, ev *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	LockEvent(ctx context.Context, id string) (*model.Event, error)
	SetAvailable(ctx context.Context, id string, available int) error
	EventsWithOpenCapacity(ctx context.Context, limit int) ([]string, error)

	CreateBooking(ctx context.Context, b *model.Booking) error
	SaveBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	GetBookingByPaymentID(ctx context.Context, paymentID string) (*model.Booking, error)
	FindActiveBooking(ctx context.Context, eventID, userID string) (*model.Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
	CountActiveBookings(ctx context.Context, eventID string) (int64, error)

	CreateEntry(ctx context.Context, e *model.WaitlistEntry) error
	SaveEntry(ctx context.Context, e *model.WaitlistEntry) error
	GetEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error)
	DeleteEntry(ctx context.Context, e *model.WaitlistEntry) error
	ListEntries(ctx context.Context, eventID string) ([]model.WaitlistEntry, error)
	MaxPriority(ctx context.Context, eventID string) (int, error)
	PeekNext(ctx context.Context, eventID string) (*model.WaitlistEntry, error)
	CountEntries(ctx context.Context, eventID string) (int64, error)
	CountAhead(ctx context.Context, eventID string, priority int) (int64, error)
	CountOpenWindows(ctx context.Context, eventID string, now time.Time) (int64, error)
	ListLapsedWindows(ctx context.Context, eventID string, now time.Time) ([]model.WaitlistEntry, error)
	EventsWithLapsedWindows(ctx context.Context, now time.Time, limit int) ([]string, error)

	AppendAudit(ctx context.Context, a *model.AuditLog) error
	ListAudit(ctx context.Context, subjectID string) ([]model.AuditLog, error)

	SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
	PushSubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	SaveTelegramChat(ctx context.Context, chat *model.TelegramChat) error
	TelegramChatForUser(ctx context.Context, userID string) (*model.TelegramChat, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
	tx *txState // nil unless bound to a transaction
}

type txState struct {
	afterCommit []func()
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction implements Store.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	state := &txState{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, tx: state})
	})
	if err != nil {
		return err
	}

	for _, cb := range state.afterCommit {
		cb()
	}
	return nil
}

// AfterCommit implements Store.
func (s *gormStore) AfterCommit(fn func()) {
	if s.tx == nil {
		fn()
		return
	}
	s.tx.afterCommit = append(s.tx.afterCommit, fn)
}

// notFound converts gorm's missing-row error into the engine's taxonomy.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
