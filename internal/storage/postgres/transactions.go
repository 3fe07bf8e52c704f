package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/storage"
)

// TransactionStore is the postgres implementation of
// storage.TransactionStore.
type TransactionStore struct {
	db *sql.DB
}

// NewTransactionStore creates a transaction store backed by db.
func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionColumns = `id, reference_code, owner_id, type, amount, description,
	counterparty, status, approver_id, reject_reason, created_at, approved_at`

// Insert implements storage.TransactionStore. A collision on the
// reference_code unique index surfaces as storage.ErrUniqueViolation.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.Transaction) error {
	const query = `INSERT INTO transactions
		(id, reference_code, owner_id, type, amount, description, counterparty,
		 status, approver_id, reject_reason, created_at, approved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.ReferenceCode, tx.OwnerID, string(tx.Type), tx.Amount,
		tx.Description, tx.Counterparty, string(tx.Status), tx.ApproverID,
		tx.RejectReason, tx.CreatedAt, tx.ApprovedAt,
	)
	if err != nil {
		if mapped := mapInsertErr(err); mapped == storage.ErrUniqueViolation {
			return mapped
		}
		return fmt.Errorf("Insert: inserting transaction: %w", err)
	}

	return nil
}

// GetByReference implements storage.TransactionStore.
func (s *TransactionStore) GetByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference_code = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		if mapped := mapScanErr(err); mapped == storage.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("GetByReference: scanning transaction: %w", err)
	}

	return tx, nil
}

// SettleIfPending implements storage.TransactionStore. The WHERE clause
// carries the Pending guard, so of two racing approvers exactly one
// UPDATE matches a row.
func (s *TransactionStore) SettleIfPending(ctx context.Context, ref string, status domain.TransactionStatus, approverID, reason string, at time.Time) (*domain.Transaction, error) {
	query := `UPDATE transactions
		SET status = $2, approver_id = $3, reject_reason = $4, approved_at = $5
		WHERE reference_code = $1 AND status = 'pending'
		RETURNING ` + transactionColumns

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, ref, string(status), approverID, reason, at))
	if err != nil {
		if mapped := mapScanErr(err); mapped == storage.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("SettleIfPending: updating transaction: %w", err)
	}

	return tx, nil
}

// ListByOwner implements storage.TransactionStore.
func (s *TransactionStore) ListByOwner(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = $1`
	args := []any{ownerID}

	if f.Type != "" {
		args = append(args, string(f.Type))
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += ` AND created_at < $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	return s.list(ctx, "ListByOwner", query, args...)
}

// ListPending implements storage.TransactionStore.
func (s *TransactionStore) ListPending(ctx context.Context) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'pending' ORDER BY created_at ASC`

	return s.list(ctx, "ListPending", query)
}

// ListApprovedBetween implements storage.TransactionStore.
func (s *TransactionStore) ListApprovedBetween(ctx context.Context, from, to time.Time) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'approved' AND created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC`

	return s.list(ctx, "ListApprovedBetween", query, from, to)
}

func (s *TransactionStore) list(ctx context.Context, op, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: querying transactions: %w", op, err)
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scanning row: %w", op, err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterating rows: %w", op, err)
	}

	return result, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx         domain.Transaction
		txType     string
		status     string
		approvedAt sql.NullTime
	)

	err := row.Scan(
		&tx.ID, &tx.ReferenceCode, &tx.OwnerID, &txType, &tx.Amount,
		&tx.Description, &tx.Counterparty, &status, &tx.ApproverID,
		&tx.RejectReason, &tx.CreatedAt, &approvedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	if approvedAt.Valid {
		t := approvedAt.Time
		tx.ApprovedAt = &t
	}

	return &tx, nil
}

var _ storage.TransactionStore = (*TransactionStore)(nil)
