package model

import "time"

// WaitlistEntry is a user's place in an event's FIFO waitlist. Priority is a
// dense 1-based ticket: removals shift every later ticket down by one.
type WaitlistEntry struct {
	ID                    string     `gorm:"primaryKey;size:36" json:"id"`
	EventID               string     `gorm:"size:36;not null;uniqueIndex:idx_waitlist_event_user,priority:1;uniqueIndex:idx_waitlist_event_priority,priority:1" json:"event_id"`
	UserID                string     `gorm:"size:64;not null;uniqueIndex:idx_waitlist_event_user,priority:2" json:"user_id"`
	Priority              int        `gorm:"not null;uniqueIndex:idx_waitlist_event_priority,priority:2" json:"priority"`
	NotifiedAt            *time.Time `json:"notified_at"`
	NotificationExpiresAt *time.Time `gorm:"index" json:"notification_expires_at"`
	CreatedAt             time.Time  `gorm:"not null" json:"created_at"`
}

// Notified reports whether a claim window has been opened for the entry.
func (w *WaitlistEntry) Notified() bool {
	return w.NotifiedAt != nil && w.NotificationExpiresAt != nil
}

// WindowOpen reports whether the entry holds a claim window that is still running at now.
func (w *WaitlistEntry) WindowOpen(now time.Time) bool {
	return w.Notified() && now.Before(*w.NotificationExpiresAt)
}

// WaitlistState is the user-facing summary of an entry.
type WaitlistState string

const (
	WaitlistWaiting       WaitlistState = "WAITING"
	WaitlistNotified      WaitlistState = "NOTIFIED"
	WaitlistWindowExpired WaitlistState = "WINDOW_EXPIRED"
)

// WaitlistStatus is returned by waitlist reads.
type WaitlistStatus struct {
	EventID               string        `json:"event_id"`
	UserID                string        `json:"user_id"`
	Position              int           `json:"position"`
	TotalInQueue          int           `json:"total_in_queue"`
	Notified              bool          `json:"notified"`
	NotificationExpiresAt *time.Time    `json:"notification_expires_at,omitempty"`
	Status                WaitlistState `json:"status"`
}
