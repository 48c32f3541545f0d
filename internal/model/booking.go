package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingNoShow    BookingStatus = "NO_SHOW"
)

// Active reports whether the status still holds capacity.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// Terminal reports whether no further transition is defined from s.
func (s BookingStatus) Terminal() bool {
	return !s.Active()
}

// ActiveBookingStatuses are the statuses counted against an event's capacity.
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed}

// PaymentStatus is the payment collaborator's view of a booking. It moves
// independently of BookingStatus.
type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "NOT_REQUIRED"
	PaymentPending     PaymentStatus = "PENDING"
	PaymentSucceeded   PaymentStatus = "SUCCEEDED"
	PaymentFailed      PaymentStatus = "FAILED"
	PaymentCancelled   PaymentStatus = "CANCELLED"
	PaymentRefunded    PaymentStatus = "REFUNDED"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentNotRequired, PaymentPending, PaymentSucceeded, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

// Booking is a user's claim on one unit of an event's capacity.
type Booking struct {
	ID                 string        `gorm:"primaryKey;size:36" json:"id"`
	EventID            string        `gorm:"size:36;not null;index:idx_bookings_event_user,priority:1" json:"event_id"`
	UserID             string        `gorm:"size:64;not null;index:idx_bookings_event_user,priority:2" json:"user_id"`
	Status             BookingStatus `gorm:"size:16;not null;index" json:"status"`
	Amount             int64         `gorm:"not null" json:"amount"`
	Currency           string        `gorm:"size:3" json:"currency"`
	PaymentID          *string       `gorm:"size:128;uniqueIndex" json:"payment_id,omitempty"`
	PaymentStatus      PaymentStatus `gorm:"size:16;not null" json:"payment_status"`
	ExpiresAt          *time.Time    `gorm:"index" json:"expires_at"`
	CancellationReason string        `gorm:"size:512" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null" json:"updated_at"`
}
