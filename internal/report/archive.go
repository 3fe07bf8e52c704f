package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/okazakov/bookbot/internal/domain"
)

var csvHeader = []string{
	"reference_code", "owner_id", "type", "status", "amount",
	"description", "counterparty", "approver_id", "created_at", "approved_at",
}

// WriteCSV streams transactions as CSV to w, header first.
func WriteCSV(w io.Writer, txs []*domain.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	for _, tx := range txs {
		approvedAt := ""
		if tx.ApprovedAt != nil {
			approvedAt = tx.ApprovedAt.Format(time.RFC3339)
		}
		record := []string{
			tx.ReferenceCode,
			tx.OwnerID,
			string(tx.Type),
			string(tx.Status),
			tx.Amount.String(),
			tx.Description,
			tx.Counterparty,
			tx.ApproverID,
			tx.CreatedAt.Format(time.RFC3339),
			approvedAt,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteCSV: record %s: %w", tx.ReferenceCode, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}

// ArchiveCSV uploads the transactions as a CSV object to a GCS bucket.
// Assumes Application Default Credentials are configured.
func ArchiveCSV(ctx context.Context, bucketName, objectName string, txs []*domain.Transaction) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("ArchiveCSV: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = "text/csv"

	if err := WriteCSV(w, txs); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("ArchiveCSV: finalize upload: %w", err)
	}

	return nil
}

// ArchiveObjectName builds the conventional object path for a monthly
// archive, e.g. "ledger/2026/2026-03.csv".
func ArchiveObjectName(year int, month time.Month) string {
	return fmt.Sprintf("ledger/%04d/%04d-%02d.csv", year, year, int(month))
}
