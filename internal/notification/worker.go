package notification

import (
	"context"
	"fmt"
	"log"
	"time"
)

// SlotAvailable asks for a user to be told that a slot opened on an event
// and how long the claim window runs.
type SlotAvailable struct {
	EntryID    string
	UserID     string
	EventID    string
	Window     time.Duration
	NotifiedAt time.Time
	ExpiresAt  time.Time
}

// DedupKey identifies one notification round. A re-notification after a
// lapsed window carries a new NotifiedAt and therefore a new key.
func (s SlotAvailable) DedupKey() string {
	return fmt.Sprintf("slot:%s:%d", s.EntryID, s.NotifiedAt.UnixNano())
}

// Dispatcher accepts slot-available jobs for best-effort delivery.
type Dispatcher interface {
	Dispatch(job SlotAvailable)
}

// Notifier delivers a slot-available message over one or more channels.
type Notifier interface {
	SendSlotAvailable(ctx context.Context, job SlotAvailable) error
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size     int
	jobs     chan SlotAvailable
	notifier Notifier
	dedup    Deduper
}

// NewWorkerPool creates a new worker pool. dedup may be nil.
func NewWorkerPool(size, queueSize int, notifier Notifier, dedup Deduper) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:     size,
		jobs:     make(chan SlotAvailable, queueSize),
		notifier: notifier,
		dedup:    dedup,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.deliver(ctx, job)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job without blocking. Delivery is best-effort: when the
// queue is full the job is dropped and logged, the claim window runs anyway.
func (wp *WorkerPool) Dispatch(job SlotAvailable) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("Notification queue full; dropping slot-available for user %s on event %s", job.UserID, job.EventID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan SlotAvailable {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, job SlotAvailable) {
	if wp.dedup != nil {
		first, err := wp.dedup.First(ctx, job.DedupKey(), time.Until(job.ExpiresAt))
		if err != nil {
			log.Printf("Dedup check failed for %s, delivering anyway: %v", job.DedupKey(), err)
		} else if !first {
			log.Printf("Skipping duplicate slot-available for user %s on event %s", job.UserID, job.EventID)
			return
		}
	}

	if err := wp.notifier.SendSlotAvailable(ctx, job); err != nil {
		log.Printf("Error notifying user %s about event %s: %v", job.UserID, job.EventID, err)
	}
}
