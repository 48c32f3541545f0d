// Package sweeper drives the time-based side of the engine: expired holds,
// lapsed claim windows and free places nobody has been offered yet.
package sweeper

import (
	"context"
	"log"
	"time"

	"booking-engine/config"
	"booking-engine/internal/clock"
	"booking-engine/internal/model"
)

// Finder lists the work a sweep picks up. store.Store satisfies it.
type Finder interface {
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
	EventsWithLapsedWindows(ctx context.Context, now time.Time, limit int) ([]string, error)
	EventsWithOpenCapacity(ctx context.Context, limit int) ([]string, error)
}

// Engine is the part of engine.Engine the sweeper drives.
type Engine interface {
	ExpireBookings(ctx context.Context, bookingIDs []string) (int, error)
	ProcessEventCapacity(ctx context.Context, eventID string) (int, error)
	CheckDrift(ctx context.Context, eventID string) (int, error)
}

// Result summarises one sweep.
type Result struct {
	Expired    int // bookings moved to EXPIRED
	Events     int // events whose waitlist was processed
	Offers     int // claim windows opened
	Drifted    int // events whose ledger disagrees with their bookings
	Failures   int
	FinishedAt time.Time
}

// Service runs the sweep on a timer.
type Service struct {
	cfg    config.SweeperConfig
	finder Finder
	engine Engine
	clock  clock.Clock
}

// NewService creates a sweeper.
func NewService(cfg config.SweeperConfig, finder Finder, engine Engine, clk clock.Clock) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Service{cfg: cfg, finder: finder, engine: engine, clock: clk}
}

// Run waits for the initial delay, then sweeps every interval until ctx ends.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Sweeper is disabled. Not starting.")
		return
	}
	log.Printf("Starting sweeper: first run in %s, then every %s", s.cfg.InitialDelay, s.cfg.Interval)

	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweeper shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce runs every duty once. A failing booking or event is logged and
// left for the next sweep; it never stops the rest of the batch.
func (s *Service) SweepOnce(ctx context.Context) Result {
	var res Result
	now := s.clock.Now()
	touched := make(map[string]bool)

	// Step 1: expire PENDING bookings whose hold has ended.
	if !s.expireStale(ctx, now, touched, &res) {
		return s.finish(res)
	}

	// Step 2: close lapsed claim windows and pass the offer on. Expiring a
	// booking above already processed its event's waitlist.
	lapsed, err := s.finder.EventsWithLapsedWindows(ctx, now, s.cfg.BatchSize)
	if err != nil {
		log.Printf("Error listing lapsed claim windows: %v", err)
		res.Failures++
	}
	processed := make(map[string]bool)
	s.processEvents(ctx, lapsed, processed, touched, &res)

	// Step 3: offer free places that no cascade reached.
	open, err := s.finder.EventsWithOpenCapacity(ctx, s.cfg.BatchSize)
	if err != nil {
		log.Printf("Error listing events with unoffered capacity: %v", err)
		res.Failures++
	}
	s.processEvents(ctx, open, processed, touched, &res)

	for eventID := range touched {
		if ctx.Err() != nil {
			break
		}
		drift, err := s.engine.CheckDrift(ctx, eventID)
		if err != nil {
			log.Printf("Error checking ledger for event %s: %v", eventID, err)
			res.Failures++
			continue
		}
		if drift != 0 {
			log.Printf("Warning: ledger drift of %d on event %s", drift, eventID)
			res.Drifted++
		}
	}

	return s.finish(res)
}

// expireStale pages through every booking whose hold ended before now. A
// page made only of bookings already tried this sweep ends the loop, so
// bookings that keep failing are left for the next tick. It reports false
// when ctx ended.
func (s *Service) expireStale(ctx context.Context, now time.Time, touched map[string]bool, res *Result) bool {
	tried := make(map[string]bool)
	for {
		page, err := s.finder.ListExpiredPending(ctx, now, s.cfg.BatchSize)
		if err != nil {
			log.Printf("Error listing expired bookings: %v", err)
			res.Failures++
			return true
		}

		fresh := 0
		for _, b := range page {
			if ctx.Err() != nil {
				return false
			}
			if tried[b.ID] {
				continue
			}
			tried[b.ID] = true
			fresh++

			n, err := s.engine.ExpireBookings(ctx, []string{b.ID})
			if err != nil {
				log.Printf("Error expiring booking %s: %v", b.ID, err)
				res.Failures++
				continue
			}
			res.Expired += n
			touched[b.EventID] = true
		}

		if fresh == 0 || len(page) < s.cfg.BatchSize {
			return true
		}
	}
}

func (s *Service) processEvents(ctx context.Context, eventIDs []string, processed, touched map[string]bool, res *Result) {
	for _, id := range eventIDs {
		if ctx.Err() != nil {
			return
		}
		if processed[id] {
			continue
		}
		processed[id] = true

		offers, err := s.engine.ProcessEventCapacity(ctx, id)
		if err != nil {
			log.Printf("Error processing waitlist for event %s: %v", id, err)
			res.Failures++
			continue
		}
		res.Events++
		res.Offers += offers
		touched[id] = true
	}
}

func (s *Service) finish(res Result) Result {
	res.FinishedAt = s.clock.Now()
	log.Printf("Sweep finished: %d expired, %d events processed, %d offers, %d drifted, %d failures",
		res.Expired, res.Events, res.Offers, res.Drifted, res.Failures)
	return res
}
