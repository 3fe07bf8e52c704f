package report

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/okazakov/bookbot/internal/domain"
)

const transactionsTable = "ledger_transactions"

// TransactionRow is the BigQuery shape of one approved transaction.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	ReferenceCode string `bigquery:"reference_code"` // REQUIRED

	OwnerID string `bigquery:"owner_id"` // REQUIRED
	Type    string `bigquery:"type"`     // REQUIRED
	Status  string `bigquery:"status"`   // REQUIRED

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	Description  string              `bigquery:"description"`  // REQUIRED STRING
	Counterparty bigquery.NullString `bigquery:"counterparty"` // NULLABLE
	ApproverID   bigquery.NullString `bigquery:"approver_id"`  // NULLABLE

	EntryDate  civil.Date             `bigquery:"entry_date"`  // REQUIRED
	CreatedTS  time.Time              `bigquery:"created_ts"`  // REQUIRED
	ApprovedTS bigquery.NullTimestamp `bigquery:"approved_ts"` // NULLABLE
}

// RowsFromTransactions converts ledger transactions to export rows.
func RowsFromTransactions(txs []*domain.Transaction) []*TransactionRow {
	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		row := &TransactionRow{
			TransactionID: tx.ID,
			ReferenceCode: tx.ReferenceCode,
			OwnerID:       tx.OwnerID,
			Type:          string(tx.Type),
			Status:        string(tx.Status),
			Amount:        tx.Amount.Rat(),
			Description:   tx.Description,
			EntryDate:     civil.DateOf(tx.CreatedAt),
			CreatedTS:     tx.CreatedAt,
		}
		if tx.Counterparty != "" {
			row.Counterparty = bigquery.NullString{StringVal: tx.Counterparty, Valid: true}
		}
		if tx.ApproverID != "" {
			row.ApproverID = bigquery.NullString{StringVal: tx.ApproverID, Valid: true}
		}
		if tx.ApprovedAt != nil {
			row.ApprovedTS = bigquery.NullTimestamp{Timestamp: *tx.ApprovedAt, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

// ExportTransactions inserts rows into <dataset>.ledger_transactions.
func ExportTransactions(ctx context.Context, projectID, datasetID string, rows []*TransactionRow) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("ExportTransactions: bigquery client: %w", err)
	}
	defer client.Close()

	return ExportTransactionsWithClient(ctx, client, projectID, datasetID, rows)
}

// ExportTransactionsWithClient inserts rows using the provided client.
func ExportTransactionsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(projectID, datasetID).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("ExportTransactions: inserting rows: %w", err)
	}

	return nil
}

// QueryExportedBetween reads back exported rows for a date range,
// ordered by entry date. Used by reconciliation tooling.
func QueryExportedBetween(ctx context.Context, client *bigquery.Client, datasetID string, from, to civil.Date) ([]*TransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			t.transaction_id,
			t.reference_code,
			t.owner_id,
			t.type,
			t.status,
			t.amount,
			t.description,
			t.counterparty,
			t.approver_id,
			t.entry_date,
			t.created_ts,
			t.approved_ts
		FROM %s.%s t
		WHERE t.entry_date >= @from_date
		  AND t.entry_date <= @to_date
		ORDER BY t.entry_date, t.created_ts
	`, datasetID, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from_date", Value: from.String()},
		{Name: "to_date", Value: to.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryExportedBetween: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryExportedBetween: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
