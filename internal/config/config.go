// Package config loads service configuration from the environment. A
// .env file is honored when present so local development does not need
// exported variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/okazakov/bookbot/internal/authz"
)

// Config carries everything the binaries need.
type Config struct {
	HTTPPort string

	// Ledger
	AutoApprovalThreshold decimal.Decimal
	ReferencePrefix       string
	Roles                 map[string]authz.Role

	// Storage; empty DSN selects the in-memory stores.
	PostgresDSN string

	// Audit; empty broker list selects the log sink.
	KafkaBrokers []string
	KafkaTopic   string

	// Scheduler
	PollInterval time.Duration
	Workers      int
	ClaimTTL     time.Duration
	ReminderDays int

	// Report
	BigQueryProject string
	BigQueryDataset string
	GCSBucket       string
}

// Load reads the environment, after loading .env if one exists.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	threshold, err := decimalEnv("AUTO_APPROVAL_THRESHOLD", "1000")
	if err != nil {
		return nil, err
	}
	pollInterval, err := durationEnv("SCHEDULER_POLL_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	claimTTL, err := durationEnv("SCHEDULER_CLAIM_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	workers, err := intEnv("SCHEDULER_WORKERS", 5)
	if err != nil {
		return nil, err
	}
	reminderDays, err := intEnv("REMINDER_DAYS", 0)
	if err != nil {
		return nil, err
	}
	roles, err := authz.ParseRoles(os.Getenv("LEDGER_ROLES"))
	if err != nil {
		return nil, fmt.Errorf("Load: LEDGER_ROLES: %w", err)
	}

	return &Config{
		HTTPPort:              getEnv("PORT", "8080"),
		AutoApprovalThreshold: threshold,
		ReferencePrefix:       getEnv("REFERENCE_PREFIX", "TXN"),
		Roles:                 roles,
		PostgresDSN:           os.Getenv("POSTGRES_DSN"),
		KafkaBrokers:          splitEnv("KAFKA_BROKERS"),
		KafkaTopic:            getEnv("KAFKA_AUDIT_TOPIC", "ledger-audit"),
		PollInterval:          pollInterval,
		Workers:               workers,
		ClaimTTL:              claimTTL,
		ReminderDays:          reminderDays,
		BigQueryProject:       os.Getenv("BIGQUERY_PROJECT"),
		BigQueryDataset:       getEnv("BIGQUERY_DATASET", "ledger"),
		GCSBucket:             os.Getenv("GCS_BUCKET"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decimalEnv(key, fallback string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("Load: %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("Load: %s: %w", key, err)
	}
	return v, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("Load: %s: %w", key, err)
	}
	return v, nil
}
