// Package scheduler drives the recurring engine on a fixed interval.
// It is an in-process driver suitable for single-instance deployments;
// template claims keep concurrent instances from double-materializing
// if more than one scheduler ends up running.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/storage"
)

// Engine is the slice of the recurring engine the scheduler drives.
type Engine interface {
	FindDue(ctx context.Context, asOf civil.Date) ([]*domain.RecurringTemplate, error)
	Materialize(ctx context.Context, t *domain.RecurringTemplate) (*domain.RunHistory, error)
	SendReminders(ctx context.Context, asOf civil.Date, windowDays int)
}

// BatchSummary reports the outcome of one scheduler pass. Skipped counts
// templates another worker had already claimed.
type BatchSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Config controls the poll cadence and batch parallelism.
type Config struct {
	PollInterval time.Duration // how often to look for due templates
	Workers      int           // concurrent materializations per batch
	ReminderDays int           // look-ahead window for reminders, 0 disables
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
}

// Scheduler periodically materializes due templates. Safe for concurrent
// use; Start may be called once, Stop waits for the in-flight batch.
type Scheduler struct {
	engine Engine
	clock  domain.Clock
	log    zerolog.Logger
	cfg    Config

	mu        sync.Mutex
	closeChan chan struct{}
	wg        sync.WaitGroup
	started   bool
	closed    bool
}

// NewScheduler creates a scheduler. cfg fields fall back to defaults
// when zero.
func NewScheduler(engine Engine, clock domain.Clock, log zerolog.Logger, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		engine:    engine,
		clock:     clock,
		log:       log,
		cfg:       cfg,
		closeChan: make(chan struct{}),
	}
}

// Start launches the poll loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("Start: scheduler is stopped")
	}
	if s.started {
		return fmt.Errorf("Start: scheduler already running")
	}
	s.started = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info().
		Dur("poll_interval", s.cfg.PollInterval).
		Int("workers", s.cfg.Workers).
		Msg("Scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeChan:
			return
		case <-ticker.C:
			summary, err := s.RunOnce(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("Scheduler pass failed")
				continue
			}
			if summary.Processed > 0 {
				s.log.Info().
					Int("processed", summary.Processed).
					Int("succeeded", summary.Succeeded).
					Int("failed", summary.Failed).
					Int("skipped", summary.Skipped).
					Msg("Scheduler pass complete")
			}
		}
	}
}

// RunOnce executes a single pass: find due templates as of today,
// materialize each on a bounded worker pool, then send look-ahead
// reminders. Individual template failures are absorbed into the
// summary; only listing failures abort the pass.
func (s *Scheduler) RunOnce(ctx context.Context) (BatchSummary, error) {
	today := civil.DateOf(s.clock.Now())

	due, err := s.engine.FindDue(ctx, today)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("RunOnce: list due templates: %w", err)
	}

	var (
		mu      sync.Mutex
		summary BatchSummary
	)
	summary.Processed = len(due)

	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	for _, t := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(t *domain.RecurringTemplate) {
			defer wg.Done()
			defer func() { <-sem }()

			run, err := s.engine.Materialize(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, storage.ErrNotClaimed):
				summary.Skipped++
			case err != nil:
				s.log.Error().Err(err).Str("template_id", t.ID).Msg("Materialization failed")
				summary.Failed++
			case run.Outcome == domain.RunFailed:
				summary.Failed++
			default:
				summary.Succeeded++
			}
		}(t)
	}
	wg.Wait()

	if s.cfg.ReminderDays > 0 {
		s.engine.SendReminders(ctx, today, s.cfg.ReminderDays)
	}

	return summary, nil
}

// Stop halts the poll loop and waits for the in-flight pass, or until
// ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
