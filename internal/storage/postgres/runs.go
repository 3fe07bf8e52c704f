package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/storage"
)

// RunHistoryStore is the postgres implementation of
// storage.RunHistoryStore.
type RunHistoryStore struct {
	db *sql.DB
}

// NewRunHistoryStore creates a run history store backed by db.
func NewRunHistoryStore(db *sql.DB) *RunHistoryStore {
	return &RunHistoryStore{db: db}
}

// Append implements storage.RunHistoryStore.
func (s *RunHistoryStore) Append(ctx context.Context, r *domain.RunHistory) error {
	const query = `INSERT INTO run_history
		(id, template_id, transaction_id, scheduled_for, processed_at, outcome, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.TemplateID, r.TransactionID, r.ScheduledFor.In(time.UTC),
		r.ProcessedAt, string(r.Outcome), r.Detail,
	)
	if err != nil {
		return fmt.Errorf("Append: inserting run record: %w", err)
	}

	return nil
}

// ListByTemplate implements storage.RunHistoryStore.
func (s *RunHistoryStore) ListByTemplate(ctx context.Context, templateID string) ([]*domain.RunHistory, error) {
	const query = `SELECT id, template_id, transaction_id, scheduled_for,
		processed_at, outcome, detail
		FROM run_history WHERE template_id = $1
		ORDER BY processed_at DESC`

	rows, err := s.db.QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("ListByTemplate: querying runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.RunHistory
	for rows.Next() {
		var (
			r            domain.RunHistory
			scheduledFor time.Time
			outcome      string
		)
		err := rows.Scan(&r.ID, &r.TemplateID, &r.TransactionID, &scheduledFor,
			&r.ProcessedAt, &outcome, &r.Detail)
		if err != nil {
			return nil, fmt.Errorf("ListByTemplate: scanning row: %w", err)
		}
		r.ScheduledFor = civil.DateOf(scheduledFor)
		r.Outcome = domain.RunOutcome(outcome)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByTemplate: iterating rows: %w", err)
	}

	return result, nil
}

var _ storage.RunHistoryStore = (*RunHistoryStore)(nil)
