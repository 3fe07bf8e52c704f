// Package ledger owns the transaction state machine: creation with
// validation and auto-approval thresholding, the one-way
// Pending→Approved/Rejected transition, and the read-side queries. It
// talks to persistence through storage.TransactionStore and emits an
// audit event for every state change.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okazakov/bookbot/internal/audit"
	"github.com/okazakov/bookbot/internal/authz"
	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/storage"
)

const entityTransaction = "transaction"

// Config carries the tunables of the ledger service.
type Config struct {
	// AutoApprovalThreshold: amounts strictly below it are approved at
	// creation; amounts at or above it start Pending.
	AutoApprovalThreshold decimal.Decimal

	// ReferencePrefix is the leading segment of generated reference
	// codes. Defaults to "TXN".
	ReferencePrefix string

	// AllocationRetries caps how many times a colliding reference code
	// is regenerated before giving up. Defaults to 3.
	AllocationRetries int

	// RetryDelay is the pause between allocation attempts. Defaults to
	// 50ms.
	RetryDelay time.Duration
}

// Service is the ledger core.
type Service struct {
	store storage.TransactionStore
	auth  authz.Authorizer
	sink  audit.Sink
	clock domain.Clock
	log   zerolog.Logger
	cfg   Config
}

// NewService creates a ledger service. Zero config fields get defaults.
func NewService(store storage.TransactionStore, auth authz.Authorizer, sink audit.Sink, clock domain.Clock, log zerolog.Logger, cfg Config) *Service {
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = "TXN"
	}
	if cfg.AllocationRetries == 0 {
		cfg.AllocationRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	return &Service{
		store: store,
		auth:  auth,
		sink:  sink,
		clock: clock,
		log:   log,
		cfg:   cfg,
	}
}

// CreateInput is the payload for Create.
type CreateInput struct {
	OwnerID      string
	Type         domain.TransactionType
	Amount       decimal.Decimal
	Description  string
	Counterparty string
	Meta         map[string]string
}

// Create validates the input, allocates a reference code, decides the
// initial status against the auto-approval threshold (strict less-than:
// an amount equal to the threshold stays Pending) and persists the
// transaction. A reference collision regenerates the random suffix and
// retries up to the configured ceiling before escalating to an
// AllocationError.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Transaction, error) {
	now := s.clock.Now()

	tx := &domain.Transaction{
		ID:           uuid.New().String(),
		OwnerID:      in.OwnerID,
		Type:         in.Type,
		Amount:       in.Amount,
		Description:  in.Description,
		Counterparty: in.Counterparty,
		Status:       domain.StatusPending,
		CreatedAt:    now,
	}
	if err := tx.ValidateNew(); err != nil {
		return nil, err
	}

	if in.Amount.LessThan(s.cfg.AutoApprovalThreshold) {
		approved := now
		tx.Status = domain.StatusApproved
		tx.ApprovedAt = &approved
	}

	var insertErr error
	for attempt := 1; attempt <= s.cfg.AllocationRetries; attempt++ {
		tx.ReferenceCode = newReferenceCode(s.cfg.ReferencePrefix, now)

		insertErr = s.store.Insert(ctx, tx)
		if insertErr == nil {
			break
		}
		if !errors.Is(insertErr, storage.ErrUniqueViolation) {
			return nil, fmt.Errorf("Create: persisting transaction: %w", insertErr)
		}

		s.log.Warn().
			Str("reference_code", tx.ReferenceCode).
			Int("attempt", attempt).
			Msg("Reference code collision, regenerating")

		if attempt < s.cfg.AllocationRetries {
			time.Sleep(s.cfg.RetryDelay)
		}
	}
	if insertErr != nil {
		return nil, &domain.AllocationError{Attempts: s.cfg.AllocationRetries, Err: insertErr}
	}

	s.record(ctx, in.OwnerID, "created", tx, map[string]string{
		"type":   string(tx.Type),
		"amount": tx.Amount.String(),
		"status": string(tx.Status),
	})

	return tx, nil
}

// Approve settles a pending transaction as Approved. The transition is a
// conditional update that only applies while the row is still Pending,
// so two simultaneous approvers resolve to one winner without locking.
func (s *Service) Approve(ctx context.Context, referenceCode, approverID string) (*domain.Transaction, error) {
	return s.settle(ctx, referenceCode, approverID, domain.StatusApproved, "")
}

// Reject settles a pending transaction as Rejected, storing the reason.
// Same preconditions and race behavior as Approve.
func (s *Service) Reject(ctx context.Context, referenceCode, approverID, reason string) (*domain.Transaction, error) {
	return s.settle(ctx, referenceCode, approverID, domain.StatusRejected, reason)
}

func (s *Service) settle(ctx context.Context, ref, approverID string, status domain.TransactionStatus, reason string) (*domain.Transaction, error) {
	op := "approve"
	if status == domain.StatusRejected {
		op = "reject"
	}

	cur, err := s.store.GetByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.NotFoundError{Entity: entityTransaction, Key: ref}
		}
		return nil, fmt.Errorf("settle: loading transaction: %w", err)
	}
	if cur.Status != domain.StatusPending {
		return nil, &domain.InvalidStateError{Entity: entityTransaction, Key: ref, State: string(cur.Status), Op: op}
	}
	if !s.auth.CheckRole(approverID, authz.CapApprove) {
		return nil, &domain.ForbiddenError{ActorID: approverID, Op: op + " transactions"}
	}

	tx, err := s.store.SettleIfPending(ctx, ref, status, approverID, reason, s.clock.Now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Another approver won the race between our read and the
			// conditional update.
			return nil, &domain.InvalidStateError{Entity: entityTransaction, Key: ref, State: "settled", Op: op}
		}
		return nil, fmt.Errorf("settle: updating transaction: %w", err)
	}

	details := map[string]string{"amount": tx.Amount.String()}
	if reason != "" {
		details["reason"] = reason
	}
	s.record(ctx, approverID, string(status), tx, details)

	return tx, nil
}

// ByReference returns the transaction with the given reference code.
func (s *Service) ByReference(ctx context.Context, referenceCode string) (*domain.Transaction, error) {
	tx, err := s.store.GetByReference(ctx, referenceCode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.NotFoundError{Entity: entityTransaction, Key: referenceCode}
		}
		return nil, fmt.Errorf("ByReference: loading transaction: %w", err)
	}
	return tx, nil
}

// ByOwner returns the owner's transactions matching the filter.
func (s *Service) ByOwner(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]*domain.Transaction, error) {
	return s.store.ListByOwner(ctx, ownerID, f)
}

// Pending returns all transactions awaiting approval, oldest first.
func (s *Service) Pending(ctx context.Context) ([]*domain.Transaction, error) {
	return s.store.ListPending(ctx)
}

// record emits an audit event. Fire-and-forget: a sink failure is
// logged, never surfaced to the business operation.
func (s *Service) record(ctx context.Context, actorID, action string, tx *domain.Transaction, details map[string]string) {
	err := s.sink.Record(ctx, audit.Event{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityTransaction,
		EntityID:   tx.ReferenceCode,
		Details:    details,
		OccurredAt: s.clock.Now(),
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("action", action).
			Str("reference_code", tx.ReferenceCode).
			Msg("Failed to record audit event")
	}
}
