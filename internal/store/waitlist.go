package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"booking-engine/internal/model"
)

func (s *gormStore) CreateEntry(ctx context.Context, e *model.WaitlistEntry) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to create waitlist entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *gormStore) SaveEntry(ctx context.Context, e *model.WaitlistEntry) error {
	if err := s.db.WithContext(ctx).Save(e).Error; err != nil {
		return fmt.Errorf("failed to save waitlist entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *gormStore) GetEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	if err := s.db.WithContext(ctx).Where("event_id = ? AND user_id = ?", eventID, userID).First(&e).Error; err != nil {
		return nil, notFound(err, "waitlist entry for user %s on event %s", userID, eventID)
	}
	return &e, nil
}

// DeleteEntry removes e and closes the gap it leaves: every later ticket moves
// down by one. The shift goes through negative values so the
// (event_id, priority) unique index never sees two rows with the same ticket
// mid-statement.
func (s *gormStore) DeleteEntry(ctx context.Context, e *model.WaitlistEntry) error {
	return s.Transaction(ctx, func(tx Store) error {
		db := tx.DB().WithContext(ctx)
		res := db.Where("id = ?", e.ID).Delete(&model.WaitlistEntry{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete waitlist entry %s: %w", e.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: waitlist entry %s", model.ErrNotFound, e.ID)
		}

		if err := db.Model(&model.WaitlistEntry{}).
			Where("event_id = ? AND priority > ?", e.EventID, e.Priority).
			Update("priority", gorm.Expr("-(priority - 1)")).Error; err != nil {
			return fmt.Errorf("failed to compact waitlist for event %s: %w", e.EventID, err)
		}
		if err := db.Model(&model.WaitlistEntry{}).
			Where("event_id = ? AND priority < 0", e.EventID).
			Update("priority", gorm.Expr("-priority")).Error; err != nil {
			return fmt.Errorf("failed to compact waitlist for event %s: %w", e.EventID, err)
		}
		return nil
	})
}

// ListEntries returns the event's waitlist in ticket order.
func (s *gormStore) ListEntries(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	var entries []model.WaitlistEntry
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Order("priority ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list waitlist for event %s: %w", eventID, err)
	}
	return entries, nil
}

func (s *gormStore) MaxPriority(ctx context.Context, eventID string) (int, error) {
	var max int
	err := s.db.WithContext(ctx).Model(&model.WaitlistEntry{}).
		Where("event_id = ?", eventID).
		Select("COALESCE(MAX(priority), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read max priority for event %s: %w", eventID, err)
	}
	return max, nil
}

// PeekNext returns the earliest-ticket entry that has not been offered a slot.
func (s *gormStore) PeekNext(ctx context.Context, eventID string) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND notified_at IS NULL", eventID).
		Order("priority ASC").
		First(&e).Error
	if err != nil {
		return nil, notFound(err, "unnotified waitlist entry on event %s", eventID)
	}
	return &e, nil
}

func (s *gormStore) CountEntries(ctx context.Context, eventID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.WaitlistEntry{}).Where("event_id = ?", eventID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count waitlist for event %s: %w", eventID, err)
	}
	return n, nil
}

// CountAhead counts entries holding a strictly lower ticket than priority.
func (s *gormStore) CountAhead(ctx context.Context, eventID string, priority int) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.WaitlistEntry{}).
		Where("event_id = ? AND priority < ?", eventID, priority).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count waitlist position on event %s: %w", eventID, err)
	}
	return n, nil
}

// CountOpenWindows counts entries whose claim window is still running at now.
func (s *gormStore) CountOpenWindows(ctx context.Context, eventID string, now time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.WaitlistEntry{}).
		Where("event_id = ? AND notified_at IS NOT NULL AND notification_expires_at > ?", eventID, now).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count open claim windows on event %s: %w", eventID, err)
	}
	return n, nil
}

// ListLapsedWindows returns the event's entries whose claim window ended at or before now.
func (s *gormStore) ListLapsedWindows(ctx context.Context, eventID string, now time.Time) ([]model.WaitlistEntry, error) {
	var entries []model.WaitlistEntry
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND notification_expires_at IS NOT NULL AND notification_expires_at <= ?", eventID, now).
		Order("priority ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed claim windows on event %s: %w", eventID, err)
	}
	return entries, nil
}

func (s *gormStore) EventsWithLapsedWindows(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.WaitlistEntry{}).
		Where("notification_expires_at IS NOT NULL AND notification_expires_at <= ?", now).
		Distinct().
		Limit(limit).
		Pluck("event_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events with lapsed claim windows: %w", err)
	}
	return ids, nil
}
