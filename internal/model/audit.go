package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditAction names the transition an audit record describes.
type AuditAction string

const (
	AuditCreated               AuditAction = "CREATED"
	AuditStatusChanged         AuditAction = "STATUS_CHANGED"
	AuditPaymentUpdated        AuditAction = "PAYMENT_UPDATED"
	AuditExpired               AuditAction = "EXPIRED"
	AuditCancelled             AuditAction = "CANCELLED"
	AuditConfirmed             AuditAction = "CONFIRMED"
	AuditJoined                AuditAction = "JOINED"
	AuditLeft                  AuditAction = "LEFT"
	AuditNotified              AuditAction = "NOTIFIED"
	AuditConfirmedFromWaitlist AuditAction = "CONFIRMED_FROM_WAITLIST"
)

// Audit subject kinds.
const (
	SubjectBooking       = "booking"
	SubjectWaitlistEntry = "waitlist_entry"
)

// AuditLog is an append-only record of a single transition.
type AuditLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SubjectType string         `gorm:"size:32;not null" json:"subject_type"`
	SubjectID   string         `gorm:"size:36;not null;index" json:"subject_id"`
	EventID     string         `gorm:"size:36;not null;index" json:"event_id"`
	Action      AuditAction    `gorm:"size:32;not null;index" json:"action"`
	OldValue    datatypes.JSON `json:"old_value,omitempty"`
	NewValue    datatypes.JSON `json:"new_value,omitempty"`
	ActorID     *string        `gorm:"size:64" json:"actor_id"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
}
