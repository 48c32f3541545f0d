package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Fanout sends through every channel and joins their errors.
type Fanout []Notifier

// SendSlotAvailable implements Notifier.
func (f Fanout) SendSlotAvailable(ctx context.Context, job SlotAvailable) error {
	var errs []error
	for _, n := range f {
		if err := n.SendSlotAvailable(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier only logs. It keeps the pipeline observable when no channel is configured.
type LogNotifier struct{}

// SendSlotAvailable implements Notifier.
func (LogNotifier) SendSlotAvailable(_ context.Context, job SlotAvailable) error {
	log.Printf("slot available: user=%s event=%s expires=%s", job.UserID, job.EventID, job.ExpiresAt.Format("15:04:05"))
	return nil
}

func slotMessage(job SlotAvailable) string {
	return fmt.Sprintf("A place is free for event %s. Claim it within %d minutes (until %s UTC).",
		job.EventID, int(job.Window.Minutes()), job.ExpiresAt.Format("2006-01-02 15:04"))
}
