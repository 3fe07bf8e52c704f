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

// TemplateStore is the postgres implementation of storage.TemplateStore.
// The recurring_templates table carries an index on (status, next_run)
// so due-date scans stay cheap.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore creates a template store backed by db.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

const templateColumns = `id, owner_id, type, amount, description, counterparty,
	frequency, interval_count, day_of_week, day_of_month, start_date, end_date,
	max_runs, status, next_run, last_run, total_runs, created_at, claimed_at`

// Insert implements storage.TemplateStore.
func (s *TemplateStore) Insert(ctx context.Context, t *domain.RecurringTemplate) error {
	const query = `INSERT INTO recurring_templates
		(id, owner_id, type, amount, description, counterparty, frequency,
		 interval_count, day_of_week, day_of_month, start_date, end_date,
		 max_runs, status, next_run, last_run, total_runs, created_at, claimed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	var dow *int
	if t.DayOfWeek != nil {
		d := int(*t.DayOfWeek)
		dow = &d
	}

	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.OwnerID, string(t.Type), t.Amount, t.Description,
		t.Counterparty, string(t.Frequency), t.Interval, dow, t.DayOfMonth,
		dateValue(&t.StartDate), dateValue(t.EndDate), t.MaxRuns,
		string(t.Status), dateValue(&t.NextRun), dateValue(t.LastRun),
		t.TotalRuns, t.CreatedAt, t.ClaimedAt,
	)
	if err != nil {
		if mapped := mapInsertErr(err); mapped == storage.ErrUniqueViolation {
			return mapped
		}
		return fmt.Errorf("Insert: inserting template: %w", err)
	}

	return nil
}

// Get implements storage.TemplateStore.
func (s *TemplateStore) Get(ctx context.Context, id string) (*domain.RecurringTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM recurring_templates WHERE id = $1`

	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if mapped := mapScanErr(err); mapped == storage.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("Get: scanning template: %w", err)
	}

	return t, nil
}

// ListDue implements storage.TemplateStore.
func (s *TemplateStore) ListDue(ctx context.Context, asOf civil.Date) ([]*domain.RecurringTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM recurring_templates
		WHERE status = 'active' AND next_run <= $1
		ORDER BY next_run ASC`

	return s.list(ctx, "ListDue", query, asOf.In(time.UTC))
}

// ListByOwner implements storage.TemplateStore.
func (s *TemplateStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.RecurringTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM recurring_templates
		WHERE owner_id = $1 ORDER BY created_at DESC`

	return s.list(ctx, "ListByOwner", query, ownerID)
}

// Claim implements storage.TemplateStore. The guard on status and claim
// age sits in the WHERE clause, so of two overlapping poll cycles only
// one worker's UPDATE matches.
func (s *TemplateStore) Claim(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	const query = `UPDATE recurring_templates
		SET claimed_at = $2
		WHERE id = $1 AND status = 'active'
		  AND (claimed_at IS NULL OR claimed_at < $3)`

	res, err := s.db.ExecContext(ctx, query, id, now, now.Add(-ttl))
	if err != nil {
		return fmt.Errorf("Claim: updating claim: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Claim: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotClaimed
	}

	return nil
}

// Release implements storage.TemplateStore.
func (s *TemplateStore) Release(ctx context.Context, id string) error {
	const query = `UPDATE recurring_templates SET claimed_at = NULL WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Release: clearing claim: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Release: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// UpdateIf implements storage.TemplateStore. The row is locked with
// SELECT ... FOR UPDATE, the status guard is checked, mutate runs in Go,
// and the whole row is written back inside one transaction.
func (s *TemplateStore) UpdateIf(ctx context.Context, id string, from []domain.TemplateStatus, mutate func(*domain.RecurringTemplate)) (*domain.RecurringTemplate, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("UpdateIf: beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `SELECT ` + templateColumns + ` FROM recurring_templates WHERE id = $1 FOR UPDATE`

	t, err := scanTemplate(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		if mapped := mapScanErr(err); mapped == storage.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("UpdateIf: scanning template: %w", err)
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

	mutate(t)
	t.ClaimedAt = nil

	var dow *int
	if t.DayOfWeek != nil {
		d := int(*t.DayOfWeek)
		dow = &d
	}

	const update = `UPDATE recurring_templates
		SET status = $2, next_run = $3, last_run = $4, total_runs = $5,
		    day_of_week = $6, day_of_month = $7, end_date = $8, max_runs = $9,
		    claimed_at = NULL
		WHERE id = $1`

	_, err = dbTx.ExecContext(ctx, update,
		t.ID, string(t.Status), dateValue(&t.NextRun), dateValue(t.LastRun),
		t.TotalRuns, dow, t.DayOfMonth, dateValue(t.EndDate), t.MaxRuns,
	)
	if err != nil {
		return nil, fmt.Errorf("UpdateIf: writing template: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("UpdateIf: committing: %w", err)
	}

	return t, nil
}

func (s *TemplateStore) list(ctx context.Context, op, query string, args ...any) ([]*domain.RecurringTemplate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: querying templates: %w", op, err)
	}
	defer rows.Close()

	var result []*domain.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scanning row: %w", op, err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterating rows: %w", op, err)
	}

	return result, nil
}

func scanTemplate(row rowScanner) (*domain.RecurringTemplate, error) {
	var (
		t          domain.RecurringTemplate
		txType     string
		frequency  string
		status     string
		dow        sql.NullInt64
		dom        sql.NullInt64
		maxRuns    sql.NullInt64
		startDate  time.Time
		endDate    sql.NullTime
		nextRun    time.Time
		lastRun    sql.NullTime
		claimedAt  sql.NullTime
	)

	err := row.Scan(
		&t.ID, &t.OwnerID, &txType, &t.Amount, &t.Description,
		&t.Counterparty, &frequency, &t.Interval, &dow, &dom, &startDate,
		&endDate, &maxRuns, &status, &nextRun, &lastRun, &t.TotalRuns,
		&t.CreatedAt, &claimedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Type = domain.TransactionType(txType)
	t.Frequency = domain.Frequency(frequency)
	t.Status = domain.TemplateStatus(status)
	t.StartDate = civil.DateOf(startDate)
	t.NextRun = civil.DateOf(nextRun)
	if dow.Valid {
		d := time.Weekday(dow.Int64)
		t.DayOfWeek = &d
	}
	if dom.Valid {
		d := int(dom.Int64)
		t.DayOfMonth = &d
	}
	if maxRuns.Valid {
		m := int(maxRuns.Int64)
		t.MaxRuns = &m
	}
	if endDate.Valid {
		d := civil.DateOf(endDate.Time)
		t.EndDate = &d
	}
	if lastRun.Valid {
		d := civil.DateOf(lastRun.Time)
		t.LastRun = &d
	}
	if claimedAt.Valid {
		c := claimedAt.Time
		t.ClaimedAt = &c
	}

	return &t, nil
}

// dateValue converts an optional civil.Date into a DATE column value.
func dateValue(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.In(time.UTC)
}

var _ storage.TemplateStore = (*TemplateStore)(nil)
