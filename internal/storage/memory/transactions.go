// Package memory provides mutex-guarded in-memory implementations of the
// storage interfaces. They enforce the same uniqueness and conditional
// update semantics as the postgres stores, which makes them suitable for
// tests and single-process development runs. Data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/storage"
)

// TransactionStore is an in-memory TransactionStore keyed by reference
// code. Safe for concurrent use.
type TransactionStore struct {
	mu   sync.RWMutex
	byRef map[string]*domain.Transaction
}

// NewTransactionStore creates an empty in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		byRef: make(map[string]*domain.Transaction),
	}
}

// Insert implements storage.TransactionStore. The reference code acts as
// the unique key.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[tx.ReferenceCode]; exists {
		return storage.ErrUniqueViolation
	}

	// Store a copy to shield the map from caller mutation.
	cp := *tx
	s.byRef[tx.ReferenceCode] = &cp

	return nil
}

// GetByReference implements storage.TransactionStore.
func (s *TransactionStore) GetByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byRef[ref]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *tx
	return &cp, nil
}

// SettleIfPending implements storage.TransactionStore. The status check
// and the write happen under one lock, so two racing approvers observe
// exactly one winner.
func (s *TransactionStore) SettleIfPending(ctx context.Context, ref string, status domain.TransactionStatus, approverID, reason string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byRef[ref]
	if !ok || tx.Status != domain.StatusPending {
		return nil, storage.ErrNotFound
	}

	settled := at
	tx.Status = status
	tx.ApproverID = approverID
	tx.RejectReason = reason
	tx.ApprovedAt = &settled

	cp := *tx
	return &cp, nil
}

// ListByOwner implements storage.TransactionStore.
func (s *TransactionStore) ListByOwner(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.byRef {
		if tx.OwnerID != ownerID {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && tx.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !tx.CreatedAt.Before(f.To) {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// ListPending implements storage.TransactionStore.
func (s *TransactionStore) ListPending(ctx context.Context) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.byRef {
		if tx.Status != domain.StatusPending {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// ListApprovedBetween implements storage.TransactionStore.
func (s *TransactionStore) ListApprovedBetween(ctx context.Context, from, to time.Time) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.byRef {
		if tx.Status != domain.StatusApproved {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

var _ storage.TransactionStore = (*TransactionStore)(nil)
