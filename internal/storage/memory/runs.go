package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/storage"
)

// RunHistoryStore is an in-memory append-only RunHistoryStore. Safe for
// concurrent use.
type RunHistoryStore struct {
	mu   sync.RWMutex
	runs []*domain.RunHistory
}

// NewRunHistoryStore creates an empty in-memory run history store.
func NewRunHistoryStore() *RunHistoryStore {
	return &RunHistoryStore{}
}

// Append implements storage.RunHistoryStore.
func (s *RunHistoryStore) Append(ctx context.Context, r *domain.RunHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.runs = append(s.runs, &cp)

	return nil
}

// ListByTemplate implements storage.RunHistoryStore.
func (s *RunHistoryStore) ListByTemplate(ctx context.Context, templateID string) ([]*domain.RunHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RunHistory
	for _, r := range s.runs {
		if r.TemplateID != templateID {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ProcessedAt.After(result[j].ProcessedAt)
	})

	return result, nil
}

var _ storage.RunHistoryStore = (*RunHistoryStore)(nil)
