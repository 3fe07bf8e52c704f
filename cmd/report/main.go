// Command report runs a one-shot monthly export: it reads the approved
// transactions for the given month from Postgres, inserts them into
// BigQuery, and archives a CSV copy in GCS.
package main

import (
	"context"
	"flag"
	"time"

	"cloud.google.com/go/civil"

	"github.com/okazakov/bookbot/internal/config"
	"github.com/okazakov/bookbot/internal/logger"
	"github.com/okazakov/bookbot/internal/report"
	"github.com/okazakov/bookbot/internal/storage/postgres"
)

func main() {
	var month = flag.String("month", "", "month to export as YYYY-MM (default: previous month)")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}
	if cfg.BigQueryProject == "" {
		log.Fatal().Msg("BIGQUERY_PROJECT is required")
	}

	from, to, err := monthRange(*month)
	if err != nil {
		log.Fatal().Err(err).Str("month", *month).Msg("Invalid month")
	}

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer db.Close()

	ctx := context.Background()
	store := postgres.NewTransactionStore(db)

	txs, err := store.ListApprovedBetween(ctx, from, to)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load approved transactions")
	}

	summary := report.BuildSummary(civil.DateOf(from), civil.DateOf(to.AddDate(0, 0, -1)), txs)
	log.Info().
		Int("count", summary.Count).
		Str("net", summary.Net.String()).
		Str("from", summary.From.String()).
		Str("to", summary.To.String()).
		Msg("Built period summary")

	rows := report.RowsFromTransactions(txs)
	if err := report.ExportTransactions(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, rows); err != nil {
		log.Fatal().Err(err).Msg("BigQuery export failed")
	}
	log.Info().Int("rows", len(rows)).Msg("Exported transactions to BigQuery")

	if cfg.GCSBucket == "" {
		log.Warn().Msg("No GCS_BUCKET configured - skipping CSV archive")
		return
	}

	object := report.ArchiveObjectName(from.Year(), from.Month())
	if err := report.ArchiveCSV(ctx, cfg.GCSBucket, object, txs); err != nil {
		log.Fatal().Err(err).Msg("CSV archive failed")
	}
	log.Info().Str("bucket", cfg.GCSBucket).Str("object", object).Msg("Archived CSV to GCS")
}

// monthRange returns the half-open [start, end) instants of the
// requested month, defaulting to the month before now.
func monthRange(month string) (time.Time, time.Time, error) {
	var start time.Time
	if month == "" {
		now := time.Now().UTC()
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	} else {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}

	return start, start.AddDate(0, 1, 0), nil
}
