package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/logger"
	"github.com/okazakov/bookbot/internal/storage"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// stubEngine fakes the recurring engine with per-template outcomes.
type stubEngine struct {
	mu       sync.Mutex
	due      []*domain.RecurringTemplate
	dueErr   error
	outcomes map[string]error // template ID -> Materialize error, nil = success
	failRuns map[string]bool  // template ID -> run recorded as failed
	calls    []string
	reminded int
}

func (s *stubEngine) FindDue(ctx context.Context, asOf civil.Date) ([]*domain.RecurringTemplate, error) {
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	return s.due, nil
}

func (s *stubEngine) Materialize(ctx context.Context, t *domain.RecurringTemplate) (*domain.RunHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, t.ID)
	if err := s.outcomes[t.ID]; err != nil {
		return nil, err
	}
	outcome := domain.RunSuccess
	if s.failRuns[t.ID] {
		outcome = domain.RunFailed
	}
	return &domain.RunHistory{TemplateID: t.ID, Outcome: outcome}, nil
}

func (s *stubEngine) SendReminders(ctx context.Context, asOf civil.Date, windowDays int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminded++
}

func template(id string) *domain.RecurringTemplate {
	return &domain.RecurringTemplate{
		ID:        id,
		OwnerID:   "staff",
		Type:      domain.TypeExpense,
		Amount:    decimal.NewFromInt(100),
		Frequency: domain.FreqDaily,
		Interval:  1,
		Status:    domain.TemplateActive,
		NextRun:   civil.Date{Year: 2026, Month: time.March, Day: 9},
	}
}

func newTestScheduler(engine Engine, cfg Config) *Scheduler {
	clock := fixedClock{t: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)}
	return NewScheduler(engine, clock, logger.NewWithWriter(io.Discard), cfg)
}

func TestRunOnce_Summary(t *testing.T) {
	engine := &stubEngine{
		due: []*domain.RecurringTemplate{
			template("ok-1"),
			template("ok-2"),
			template("boom"),
			template("claimed"),
		},
		outcomes: map[string]error{
			"claimed": storage.ErrNotClaimed,
		},
		failRuns: map[string]bool{
			"boom": true,
		},
	}
	sched := newTestScheduler(engine, Config{Workers: 2})

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	want := BatchSummary{Processed: 4, Succeeded: 2, Failed: 1, Skipped: 1}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
	if len(engine.calls) != 4 {
		t.Errorf("materialized %d templates, want 4", len(engine.calls))
	}
}

func TestRunOnce_FailureDoesNotStopSiblings(t *testing.T) {
	engine := &stubEngine{
		due: []*domain.RecurringTemplate{
			template("boom"),
			template("ok"),
		},
		outcomes: map[string]error{
			"boom": errors.New("store exploded"),
		},
	}
	sched := newTestScheduler(engine, Config{Workers: 1})

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if summary.Failed != 1 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v, want 1 failed and 1 succeeded", summary)
	}
}

func TestRunOnce_ListErrorAborts(t *testing.T) {
	engine := &stubEngine{dueErr: errors.New("db down")}
	sched := newTestScheduler(engine, Config{})

	_, err := sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce should surface the listing error")
	}
}

func TestRunOnce_Reminders(t *testing.T) {
	engine := &stubEngine{}

	t.Run("enabled", func(t *testing.T) {
		sched := newTestScheduler(engine, Config{ReminderDays: 3})
		if _, err := sched.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if engine.reminded != 1 {
			t.Errorf("reminded = %d, want 1", engine.reminded)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		engine.reminded = 0
		sched := newTestScheduler(engine, Config{})
		if _, err := sched.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if engine.reminded != 0 {
			t.Errorf("reminded = %d, want 0", engine.reminded)
		}
	})
}

func TestStartStop(t *testing.T) {
	engine := &stubEngine{due: []*domain.RecurringTemplate{template("tick")}}
	sched := newTestScheduler(engine, Config{PollInterval: 5 * time.Millisecond})

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sched.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	// Let at least one tick fire.
	time.Sleep(25 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Stop is idempotent.
	if err := sched.Stop(stopCtx); err != nil {
		t.Fatalf("repeated Stop failed: %v", err)
	}

	engine.mu.Lock()
	ticks := len(engine.calls)
	engine.mu.Unlock()
	if ticks == 0 {
		t.Error("expected at least one materialization before Stop")
	}

	if err := sched.Start(ctx); err == nil {
		t.Error("Start after Stop should fail")
	}
}
