package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// RunOutcome is the result of one materialization attempt.
type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunFailed  RunOutcome = "failed"
	RunSkipped RunOutcome = "skipped"
)

// RunHistory records one materialization attempt for a template. A
// Success row references exactly one produced transaction; Failed and
// Skipped rows carry no transaction.
type RunHistory struct {
	ID            string     `json:"id"`
	TemplateID    string     `json:"template_id"`
	TransactionID string     `json:"transaction_id,omitempty"` // empty unless Outcome is Success
	ScheduledFor  civil.Date `json:"scheduled_for"`
	ProcessedAt   time.Time  `json:"processed_at"`
	Outcome       RunOutcome `json:"outcome"`
	Detail        string     `json:"detail,omitempty"` // failure reason or skip note
}
