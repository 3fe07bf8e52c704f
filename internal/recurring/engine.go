// Package recurring owns the recurring-template lifecycle and the
// materialization of due templates into ledger transactions. Date
// arithmetic lives in AdvanceDate; the Engine wires it to persistence,
// the ledger and the notification dispatcher.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/ledger"
	"github.com/okazakov/bookbot/internal/notify"
	"github.com/okazakov/bookbot/internal/storage"
)

const entityTemplate = "template"

// TransactionCreator is the slice of the ledger the engine needs.
type TransactionCreator interface {
	Create(ctx context.Context, in ledger.CreateInput) (*domain.Transaction, error)
}

// Engine drives recurring templates: create, pause/resume/cancel, due
// lookup and materialization.
type Engine struct {
	templates  storage.TemplateStore
	runs       storage.RunHistoryStore
	creator    TransactionCreator
	dispatcher notify.Dispatcher
	clock      domain.Clock
	log        zerolog.Logger
	claimTTL   time.Duration
}

// NewEngine creates an engine. claimTTL bounds how long a worker may sit
// on a claimed template before another poll cycle may steal it; zero
// defaults to 10 minutes.
func NewEngine(templates storage.TemplateStore, runs storage.RunHistoryStore, creator TransactionCreator, dispatcher notify.Dispatcher, clock domain.Clock, log zerolog.Logger, claimTTL time.Duration) *Engine {
	if claimTTL == 0 {
		claimTTL = 10 * time.Minute
	}
	return &Engine{
		templates:  templates,
		runs:       runs,
		creator:    creator,
		dispatcher: dispatcher,
		clock:      clock,
		log:        log,
		claimTTL:   claimTTL,
	}
}

// TemplateInput is the payload for CreateTemplate.
type TemplateInput struct {
	OwnerID      string
	Type         domain.TransactionType
	Amount       decimal.Decimal
	Description  string
	Counterparty string
	Frequency    domain.Frequency
	Interval     int
	DayOfWeek    *time.Weekday
	DayOfMonth   *int
	StartDate    civil.Date
	EndDate      *civil.Date
	MaxRuns      *int
}

// CreateTemplate validates and persists a new Active template. The
// first due date is the start date verbatim; the day-of-week and
// day-of-month constraints only shape later dates computed by
// AdvanceDate.
func (e *Engine) CreateTemplate(ctx context.Context, in TemplateInput) (*domain.RecurringTemplate, error) {
	t := &domain.RecurringTemplate{
		ID:           uuid.New().String(),
		OwnerID:      in.OwnerID,
		Type:         in.Type,
		Amount:       in.Amount,
		Description:  in.Description,
		Counterparty: in.Counterparty,
		Frequency:    in.Frequency,
		Interval:     in.Interval,
		DayOfWeek:    in.DayOfWeek,
		DayOfMonth:   in.DayOfMonth,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		MaxRuns:      in.MaxRuns,
		Status:       domain.TemplateActive,
		NextRun:      in.StartDate,
		CreatedAt:    e.clock.Now(),
	}
	if err := t.ValidateNew(); err != nil {
		return nil, err
	}

	if err := e.templates.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("CreateTemplate: persisting template: %w", err)
	}

	return t, nil
}

// Template returns one template by ID.
func (e *Engine) Template(ctx context.Context, id string) (*domain.RecurringTemplate, error) {
	t, err := e.templates.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.NotFoundError{Entity: entityTemplate, Key: id}
		}
		return nil, fmt.Errorf("Template: loading template: %w", err)
	}
	return t, nil
}

// TemplatesByOwner returns the owner's templates, newest first.
func (e *Engine) TemplatesByOwner(ctx context.Context, ownerID string) ([]*domain.RecurringTemplate, error) {
	return e.templates.ListByOwner(ctx, ownerID)
}

// RunsFor returns a template's run history, newest first.
func (e *Engine) RunsFor(ctx context.Context, templateID string) ([]*domain.RunHistory, error) {
	return e.runs.ListByTemplate(ctx, templateID)
}

// FindDue returns the Active templates due on or before asOf, ordered
// ascending by due date.
func (e *Engine) FindDue(ctx context.Context, asOf civil.Date) ([]*domain.RecurringTemplate, error) {
	return e.templates.ListDue(ctx, asOf)
}

// Materialize produces the transaction for one due template and records
// the attempt. The template is atomically claimed first; losing the
// claim returns storage.ErrNotClaimed and the caller just skips it.
//
// A ledger failure is recorded as a Failed run and the due date stays
// put, so the same occurrence is retried on the next poll. Failures are
// isolated to this template.
func (e *Engine) Materialize(ctx context.Context, t *domain.RecurringTemplate) (*domain.RunHistory, error) {
	now := e.clock.Now()

	if err := e.templates.Claim(ctx, t.ID, now, e.claimTTL); err != nil {
		if errors.Is(err, storage.ErrNotClaimed) {
			return nil, err
		}
		return nil, fmt.Errorf("Materialize: claiming template: %w", err)
	}

	run := &domain.RunHistory{
		ID:           uuid.New().String(),
		TemplateID:   t.ID,
		ScheduledFor: t.NextRun,
		ProcessedAt:  now,
	}

	tx, err := e.creator.Create(ctx, ledger.CreateInput{
		OwnerID:      t.OwnerID,
		Type:         t.Type,
		Amount:       t.Amount,
		Description:  t.Description,
		Counterparty: t.Counterparty,
	})
	if err != nil {
		run.Outcome = domain.RunFailed
		run.Detail = err.Error()

		if appendErr := e.runs.Append(ctx, run); appendErr != nil {
			e.log.Error().Err(appendErr).Str("template_id", t.ID).Msg("Failed to append run record")
		}
		if relErr := e.templates.Release(ctx, t.ID); relErr != nil {
			e.log.Error().Err(relErr).Str("template_id", t.ID).Msg("Failed to release claim")
		}

		e.log.Warn().Err(err).
			Str("template_id", t.ID).
			Str("scheduled_for", t.NextRun.String()).
			Msg("Materialization failed")
		e.send(ctx, t.OwnerID, fmt.Sprintf("Could not record recurring entry %q due %s: %v", t.Description, t.NextRun, err))

		return run, nil
	}

	run.Outcome = domain.RunSuccess
	run.TransactionID = tx.ID

	if appendErr := e.runs.Append(ctx, run); appendErr != nil {
		e.log.Error().Err(appendErr).Str("template_id", t.ID).Msg("Failed to append run record")
	}

	today := civil.DateOf(now)
	_, err = e.templates.UpdateIf(ctx, t.ID, []domain.TemplateStatus{domain.TemplateActive}, func(tm *domain.RecurringTemplate) {
		tm.TotalRuns++
		lastRun := today
		tm.LastRun = &lastRun

		candidate, advErr := AdvanceDate(tm, tm.NextRun)
		if advErr != nil {
			// Unreachable for templates created through this engine;
			// retire the template rather than looping on it forever.
			e.log.Error().Err(advErr).Str("template_id", tm.ID).Msg("Cannot advance template date")
			tm.Status = domain.TemplateCompleted
			return
		}

		switch {
		case tm.MaxRuns != nil && tm.TotalRuns >= *tm.MaxRuns:
			tm.Status = domain.TemplateCompleted
		case tm.EndDate != nil && candidate.After(*tm.EndDate):
			tm.Status = domain.TemplateCompleted
		default:
			tm.NextRun = candidate
		}
	})
	if err != nil {
		// The transaction exists but the template did not advance; the
		// claim TTL prevents immediate double materialization and the
		// next poll retries the update path.
		return run, fmt.Errorf("Materialize: advancing template: %w", err)
	}

	e.send(ctx, t.OwnerID, fmt.Sprintf("Recorded recurring entry %q (%s) as %s", t.Description, t.Amount.String(), tx.ReferenceCode))

	return run, nil
}

// Pause suspends an Active template.
func (e *Engine) Pause(ctx context.Context, id string) (*domain.RecurringTemplate, error) {
	return e.transition(ctx, id, "pause", []domain.TemplateStatus{domain.TemplateActive}, func(tm *domain.RecurringTemplate) {
		tm.Status = domain.TemplatePaused
	})
}

// Resume reactivates a Paused template. Occurrences missed while paused
// are skipped, not backfilled: the due date is advanced past every date
// before today without materializing anything.
func (e *Engine) Resume(ctx context.Context, id string) (*domain.RecurringTemplate, error) {
	today := civil.DateOf(e.clock.Now())

	return e.transition(ctx, id, "resume", []domain.TemplateStatus{domain.TemplatePaused}, func(tm *domain.RecurringTemplate) {
		next := tm.NextRun
		for next.Before(today) {
			candidate, err := AdvanceDate(tm, next)
			if err != nil {
				break
			}
			next = candidate
		}
		tm.NextRun = next
		tm.Status = domain.TemplateActive
	})
}

// Cancel retires a template for good. Allowed from Active or Paused
// only; cancelling twice fails the second time.
func (e *Engine) Cancel(ctx context.Context, id string) (*domain.RecurringTemplate, error) {
	return e.transition(ctx, id, "cancel", []domain.TemplateStatus{domain.TemplateActive, domain.TemplatePaused}, func(tm *domain.RecurringTemplate) {
		tm.Status = domain.TemplateCancelled
	})
}

func (e *Engine) transition(ctx context.Context, id, op string, from []domain.TemplateStatus, mutate func(*domain.RecurringTemplate)) (*domain.RecurringTemplate, error) {
	cur, err := e.templates.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.NotFoundError{Entity: entityTemplate, Key: id}
		}
		return nil, fmt.Errorf("transition: loading template: %w", err)
	}

	allowed := false
	for _, st := range from {
		if cur.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &domain.InvalidStateError{Entity: entityTemplate, Key: id, State: string(cur.Status), Op: op}
	}

	t, err := e.templates.UpdateIf(ctx, id, from, mutate)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Lost a race with another transition between read and
			// update.
			return nil, &domain.InvalidStateError{Entity: entityTemplate, Key: id, State: "changed", Op: op}
		}
		return nil, fmt.Errorf("transition: updating template: %w", err)
	}

	return t, nil
}

// SendReminders notifies owners of templates that come due within the
// next windowDays. Best effort: dispatch failures are logged and never
// returned.
func (e *Engine) SendReminders(ctx context.Context, asOf civil.Date, windowDays int) {
	due, err := e.templates.ListDue(ctx, asOf.AddDays(windowDays))
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to list templates for reminders")
		return
	}

	for _, t := range due {
		if t.NextRun.Before(asOf) {
			// Overdue templates are about to be materialized; no
			// reminder needed.
			continue
		}
		e.send(ctx, t.OwnerID, fmt.Sprintf("Recurring entry %q (%s) is due on %s", t.Description, t.Amount.String(), t.NextRun))
	}
}

// send dispatches one notification, logging failures.
func (e *Engine) send(ctx context.Context, ownerID, message string) {
	if err := e.dispatcher.Notify(ctx, ownerID, message); err != nil {
		e.log.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to dispatch notification")
	}
}
