// Package storage defines the persistence interfaces consumed by the
// ledger service and the schedule engine, together with the typed errors
// every implementation must surface. Implementations live in the memory
// and postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"github.com/okazakov/bookbot/internal/domain"
)

var (
	// ErrNotFound reports a missing row, or a conditional update whose
	// guard did not match.
	ErrNotFound = errors.New("storage: not found")

	// ErrUniqueViolation reports an insert that collided with a
	// uniqueness constraint. It is typed here so retry logic never has
	// to inspect driver error text.
	ErrUniqueViolation = errors.New("storage: unique constraint violation")

	// ErrNotClaimed reports a failed template claim: the template is not
	// Active, or another worker holds a live claim on it.
	ErrNotClaimed = errors.New("storage: template not claimed")
)

// TransactionFilter narrows owner-scoped transaction listings. Zero
// values mean "no constraint".
type TransactionFilter struct {
	Type   domain.TransactionType
	Status domain.TransactionStatus
	From   time.Time
	To     time.Time
}

// TransactionStore persists ledger transactions. ReferenceCode carries a
// uniqueness constraint enforced by the store.
type TransactionStore interface {
	// Insert persists a new transaction. Returns ErrUniqueViolation if
	// the reference code is already taken.
	Insert(ctx context.Context, tx *domain.Transaction) error

	// GetByReference returns the transaction with the given reference
	// code, or ErrNotFound.
	GetByReference(ctx context.Context, ref string) (*domain.Transaction, error)

	// SettleIfPending transitions the transaction to status only if it
	// is still Pending, recording approver, reason and timestamp in the
	// same conditional update. Returns ErrNotFound if the reference is
	// unknown or the transaction already left Pending.
	SettleIfPending(ctx context.Context, ref string, status domain.TransactionStatus, approverID, reason string, at time.Time) (*domain.Transaction, error)

	// ListByOwner returns the owner's transactions matching the filter,
	// newest first.
	ListByOwner(ctx context.Context, ownerID string, f TransactionFilter) ([]*domain.Transaction, error)

	// ListPending returns all Pending transactions, oldest first.
	ListPending(ctx context.Context) ([]*domain.Transaction, error)

	// ListApprovedBetween returns Approved transactions created within
	// [from, to), oldest first. Used by the reporting exporter.
	ListApprovedBetween(ctx context.Context, from, to time.Time) ([]*domain.Transaction, error)
}

// TemplateStore persists recurring templates. Implementations keep an
// index on (status, next_run) so ListDue stays cheap.
type TemplateStore interface {
	// Insert persists a new template.
	Insert(ctx context.Context, t *domain.RecurringTemplate) error

	// Get returns the template with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.RecurringTemplate, error)

	// ListDue returns Active templates with next_run on or before asOf,
	// ordered ascending by next_run.
	ListDue(ctx context.Context, asOf civil.Date) ([]*domain.RecurringTemplate, error)

	// ListByOwner returns the owner's templates, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.RecurringTemplate, error)

	// Claim atomically marks the template as being processed by one
	// worker. The claim succeeds only if the template is Active and no
	// claim younger than ttl exists. Returns ErrNotClaimed otherwise.
	Claim(ctx context.Context, id string, now time.Time, ttl time.Duration) error

	// Release clears the processing claim without other changes.
	Release(ctx context.Context, id string) error

	// UpdateIf applies mutate to the template inside the store's
	// transaction, but only while its current status is one of from.
	// The claim is cleared as part of the same update. Returns
	// ErrNotFound if the template is missing or not in an allowed
	// state.
	UpdateIf(ctx context.Context, id string, from []domain.TemplateStatus, mutate func(*domain.RecurringTemplate)) (*domain.RecurringTemplate, error)
}

// RunHistoryStore persists materialization attempts. Rows are append
// only.
type RunHistoryStore interface {
	// Append persists one run record.
	Append(ctx context.Context, r *domain.RunHistory) error

	// ListByTemplate returns a template's runs, newest first.
	ListByTemplate(ctx context.Context, templateID string) ([]*domain.RunHistory, error)
}
