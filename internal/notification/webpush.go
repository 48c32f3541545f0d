package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"booking-engine/internal/model"
	"booking-engine/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WebPushChannel pushes slot-available messages to every browser a user subscribed.
type WebPushChannel struct {
	store   store.Store
	options *webpush.Options
	sender  NotificationSender
}

// NewWebPushChannel creates a WebPushChannel.
func NewWebPushChannel(s store.Store, options *webpush.Options) *WebPushChannel {
	return &WebPushChannel{
		store:   s,
		options: options,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

type slotPayload struct {
	Type          string `json:"type"`
	EventID       string `json:"event_id"`
	Message       string `json:"message"`
	ExpiresAt     string `json:"expires_at"`
	WindowMinutes int    `json:"window_minutes"`
}

// SendSlotAvailable implements Notifier.
func (c *WebPushChannel) SendSlotAvailable(ctx context.Context, job SlotAvailable) error {
	subscriptions, err := c.store.PushSubscriptionsForUser(ctx, job.UserID)
	if err != nil {
		return err
	}
	if len(subscriptions) == 0 {
		return nil
	}

	payload, err := json.Marshal(slotPayload{
		Type:          "slot_available",
		EventID:       job.EventID,
		Message:       slotMessage(job),
		ExpiresAt:     job.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		WindowMinutes: int(job.Window.Minutes()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	var errs []error
	for _, sub := range subscriptions {
		if err := c.sendNotification(ctx, sub, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sendNotification sends a single web push notification.
func (c *WebPushChannel) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := c.sender.Send(payload, wpSub, c.options)
	if err != nil {
		return fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := c.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push to %s: status %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
