package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okazakov/bookbot/internal/audit"
	"github.com/okazakov/bookbot/internal/authz"
	"github.com/okazakov/bookbot/internal/config"
	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/ledger"
	"github.com/okazakov/bookbot/internal/logger"
	"github.com/okazakov/bookbot/internal/notify"
	"github.com/okazakov/bookbot/internal/recurring"
	"github.com/okazakov/bookbot/internal/recurring/scheduler"
	"github.com/okazakov/bookbot/internal/storage/postgres"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// The scheduler only makes sense against shared storage: with
	// in-memory stores it would materialize into a ledger nobody reads.
	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is required for the scheduler")
	}

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer db.Close()

	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaSink.Close()
		sink = kafkaSink
	} else {
		sink = audit.NewLogSink(logger.WithComponent(log, "audit"))
	}

	clock := domain.SystemClock{}

	svc := ledger.NewService(
		postgres.NewTransactionStore(db),
		authz.NewStaticAuthorizer(cfg.Roles),
		sink,
		clock,
		logger.WithComponent(log, "ledger"),
		ledger.Config{
			AutoApprovalThreshold: cfg.AutoApprovalThreshold,
			ReferencePrefix:       cfg.ReferencePrefix,
		},
	)

	engine := recurring.NewEngine(
		postgres.NewTemplateStore(db),
		postgres.NewRunHistoryStore(db),
		svc,
		notify.NewLogDispatcher(logger.WithComponent(log, "notify")),
		clock,
		logger.WithComponent(log, "recurring"),
		cfg.ClaimTTL,
	)

	sched := scheduler.NewScheduler(engine, clock, logger.WithComponent(log, "scheduler"), scheduler.Config{
		PollInterval: cfg.PollInterval,
		Workers:      cfg.Workers,
		ReminderDays: cfg.ReminderDays,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	log.Info().Msg("Scheduler service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down scheduler...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Scheduler service exited")
}
