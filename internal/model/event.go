package model

import "time"

// EventStatus is the publication state owned by the event service.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusCompleted EventStatus = "COMPLETED"
)

// Event is the read model of a bookable event. Only the capacity ledger writes Available.
type Event struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	Title      string      `gorm:"size:256;not null" json:"title"`
	Capacity   int         `gorm:"not null" json:"capacity"`
	Available  int         `gorm:"not null" json:"available"`
	PriceMinor *int64      `json:"price_minor"` // nil or 0 means free
	Currency   string      `gorm:"size:3" json:"currency"`
	Status     EventStatus `gorm:"size:16;not null;index" json:"status"`
	StartsAt   *time.Time  `json:"starts_at,omitempty"`
	CreatedAt  time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"not null" json:"updated_at"`
}

// IsFree reports whether bookings for the event require no payment.
func (e *Event) IsFree() bool {
	return e.PriceMinor == nil || *e.PriceMinor == 0
}

// Price returns the current price in minor units, zero when unset.
func (e *Event) Price() int64 {
	if e.PriceMinor == nil {
		return 0
	}
	return *e.PriceMinor
}
