package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"booking-engine/internal/model"
)

// CreateEvent inserts an event read-model row. A fresh event starts fully available.
func (s *gormStore) CreateEvent(ctx context.Context, ev *model.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Capacity <= 0 {
		return fmt.Errorf("event capacity must be positive, got %d", ev.Capacity)
	}
	if ev.Available == 0 {
		ev.Available = ev.Capacity
	}
	if ev.Status == "" {
		ev.Status = model.EventStatusPublished
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to create event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *gormStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error; err != nil {
		return nil, notFound(err, "event %s", id)
	}
	return &ev, nil
}

// LockEvent reads the event row with SELECT ... FOR UPDATE. Inside a
// transaction this serializes every writer of the event's capacity.
func (s *gormStore) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&ev).Error
	if err != nil {
		return nil, notFound(err, "event %s", id)
	}
	return &ev, nil
}

func (s *gormStore) SetAvailable(ctx context.Context, id string, available int) error {
	res := s.db.WithContext(ctx).Model(&model.Event{}).Where("id = ?", id).Update("available", available)
	if res.Error != nil {
		return fmt.Errorf("failed to set available for event %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: event %s", model.ErrNotFound, id)
	}
	return nil
}

// EventsWithOpenCapacity lists events that have free capacity while some
// waitlisted user has not been offered a slot yet.
func (s *gormStore) EventsWithOpenCapacity(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT e.id FROM events e
		 JOIN waitlist_entries w ON w.event_id = e.id
		 WHERE e.available > 0 AND w.notified_at IS NULL
		 LIMIT ?`, limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events with open capacity: %w", err)
	}
	return ids, nil
}
