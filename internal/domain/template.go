package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Frequency is the recurrence unit of a template.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	}
	return false
}

// TemplateStatus is the lifecycle state of a recurring template.
// Completed and Cancelled are terminal; templates are never physically
// deleted.
type TemplateStatus string

const (
	TemplateActive    TemplateStatus = "active"
	TemplatePaused    TemplateStatus = "paused"
	TemplateCompleted TemplateStatus = "completed"
	TemplateCancelled TemplateStatus = "cancelled"
)

// Terminal reports whether s permits no further transitions.
func (s TemplateStatus) Terminal() bool {
	return s == TemplateCompleted || s == TemplateCancelled
}

// RecurringTemplate describes a transaction that the schedule engine
// materializes on its due dates.
//
// While the template is Active, NextRun is always a date that has not yet
// been materialized. TotalRuns only ever grows.
type RecurringTemplate struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Counterparty string          `json:"counterparty,omitempty"` // required when Type is Receivable
	Frequency    Frequency       `json:"frequency"`
	Interval     int             `json:"interval"`               // every N frequency units, >= 1
	DayOfWeek    *time.Weekday   `json:"day_of_week,omitempty"`  // weekly only: snap computed dates to this weekday
	DayOfMonth   *int            `json:"day_of_month,omitempty"` // monthly only: clamp computed dates to this day
	StartDate    civil.Date      `json:"start_date"`
	EndDate      *civil.Date     `json:"end_date,omitempty"`
	MaxRuns      *int            `json:"max_occurrences,omitempty"` // nil means unbounded
	Status       TemplateStatus  `json:"status"`
	NextRun      civil.Date      `json:"next_run"`
	LastRun      *civil.Date     `json:"last_run,omitempty"`
	TotalRuns    int             `json:"total_runs"`
	CreatedAt    time.Time       `json:"created_at"`
	ClaimedAt    *time.Time      `json:"-"` // set while a worker is materializing this template
}

// ValidateNew checks the creation invariants for a template. An
// unrecognized frequency is rejected here rather than silently coerced
// later, so that every stored template has a well-defined advance rule.
func (t *RecurringTemplate) ValidateNew() error {
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "unknown transaction type " + string(t.Type)}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "amount must be greater than zero"}
	}
	if t.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Reason: "owner is required"}
	}
	if t.Type == TypeReceivable && t.Counterparty == "" {
		return &ValidationError{Field: "counterparty", Reason: "counterparty name is required for receivables"}
	}
	if !t.Frequency.Valid() {
		return &ValidationError{Field: "frequency", Reason: "unknown frequency " + string(t.Frequency)}
	}
	if t.Interval < 1 {
		return &ValidationError{Field: "interval", Reason: "interval must be at least 1"}
	}
	if t.DayOfWeek != nil && t.Frequency != FreqWeekly {
		return &ValidationError{Field: "day_of_week", Reason: "day of week applies to weekly templates only"}
	}
	if t.DayOfMonth != nil {
		if t.Frequency != FreqMonthly {
			return &ValidationError{Field: "day_of_month", Reason: "day of month applies to monthly templates only"}
		}
		if *t.DayOfMonth < 1 || *t.DayOfMonth > 31 {
			return &ValidationError{Field: "day_of_month", Reason: "day of month must be between 1 and 31"}
		}
	}
	if !t.StartDate.IsValid() {
		return &ValidationError{Field: "start_date", Reason: "start date is required"}
	}
	if t.EndDate != nil && t.EndDate.Before(t.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "end date must not precede start date"}
	}
	if t.MaxRuns != nil && *t.MaxRuns < 1 {
		return &ValidationError{Field: "max_occurrences", Reason: "max occurrences must be at least 1"}
	}
	return nil
}

// ParseWeekday maps a lowercase English weekday name ("friday") to a
// time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Sunday, &ValidationError{Field: "day_of_week", Reason: "unknown weekday " + name}
}
