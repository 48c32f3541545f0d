package store

import (
	"context"
	"fmt"
	"time"

	"booking-engine/internal/model"
)

func (s *gormStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("failed to create booking %s: %w", b.ID, err)
	}
	return nil
}

func (s *gormStore) SaveBooking(ctx context.Context, b *model.Booking) error {
	if err := s.db.WithContext(ctx).Save(b).Error; err != nil {
		return fmt.Errorf("failed to save booking %s: %w", b.ID, err)
	}
	return nil
}

func (s *gormStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err, "booking %s", id)
	}
	return &b, nil
}

func (s *gormStore) GetBookingByPaymentID(ctx context.Context, paymentID string) (*model.Booking, error) {
	var b model.Booking
	if err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&b).Error; err != nil {
		return nil, notFound(err, "booking for payment %s", paymentID)
	}
	return &b, nil
}

// FindActiveBooking returns the user's PENDING or CONFIRMED booking for the event.
func (s *gormStore) FindActiveBooking(ctx context.Context, eventID, userID string) (*model.Booking, error) {
	var b model.Booking
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ? AND status IN ?", eventID, userID, model.ActiveBookingStatuses).
		First(&b).Error
	if err != nil {
		return nil, notFound(err, "active booking for user %s on event %s", userID, eventID)
	}
	return &b, nil
}

// ListExpiredPending returns PENDING bookings whose hold ended before now, oldest first.
func (s *gormStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	var bookings []model.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.BookingPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	return bookings, nil
}

func (s *gormStore) CountActiveBookings(ctx context.Context, eventID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Booking{}).
		Where("event_id = ? AND status IN ?", eventID, model.ActiveBookingStatuses).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings for event %s: %w", eventID, err)
	}
	return n, nil
}
