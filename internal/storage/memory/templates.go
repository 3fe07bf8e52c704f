package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/storage"
)

// TemplateStore is an in-memory TemplateStore. Safe for concurrent use.
type TemplateStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.RecurringTemplate
}

// NewTemplateStore creates an empty in-memory template store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		byID: make(map[string]*domain.RecurringTemplate),
	}
}

// Insert implements storage.TemplateStore.
func (s *TemplateStore) Insert(ctx context.Context, t *domain.RecurringTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[t.ID]; exists {
		return storage.ErrUniqueViolation
	}

	cp := *t
	s.byID[t.ID] = &cp

	return nil
}

// Get implements storage.TemplateStore.
func (s *TemplateStore) Get(ctx context.Context, id string) (*domain.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *t
	return &cp, nil
}

// ListDue implements storage.TemplateStore.
func (s *TemplateStore) ListDue(ctx context.Context, asOf civil.Date) ([]*domain.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RecurringTemplate
	for _, t := range s.byID {
		if t.Status != domain.TemplateActive {
			continue
		}
		if t.NextRun.After(asOf) {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].NextRun.Before(result[j].NextRun)
	})

	return result, nil
}

// ListByOwner implements storage.TemplateStore.
func (s *TemplateStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RecurringTemplate
	for _, t := range s.byID {
		if t.OwnerID != ownerID {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// Claim implements storage.TemplateStore. The status check and the claim
// write happen under one lock; a second worker arriving while the claim
// is live gets ErrNotClaimed.
func (s *TemplateStore) Claim(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok || t.Status != domain.TemplateActive {
		return storage.ErrNotClaimed
	}
	if t.ClaimedAt != nil && now.Sub(*t.ClaimedAt) < ttl {
		return storage.ErrNotClaimed
	}

	claimed := now
	t.ClaimedAt = &claimed

	return nil
}

// Release implements storage.TemplateStore.
func (s *TemplateStore) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.ClaimedAt = nil

	return nil
}

// UpdateIf implements storage.TemplateStore. mutate runs on a copy under
// the lock; the copy replaces the stored row only when the status guard
// matched, so concurrent callers observe a single winner.
func (s *TemplateStore) UpdateIf(ctx context.Context, id string, from []domain.TemplateStatus, mutate func(*domain.RecurringTemplate)) (*domain.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	allowed := false
	for _, st := range from {
		if t.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, storage.ErrNotFound
	}

	cp := *t
	mutate(&cp)
	cp.ClaimedAt = nil
	s.byID[id] = &cp

	out := cp
	return &out, nil
}

var _ storage.TemplateStore = (*TemplateStore)(nil)
