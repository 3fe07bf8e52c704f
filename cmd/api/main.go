package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okazakov/bookbot/internal/api/handlers"
	"github.com/okazakov/bookbot/internal/audit"
	"github.com/okazakov/bookbot/internal/authz"
	"github.com/okazakov/bookbot/internal/config"
	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/ledger"
	"github.com/okazakov/bookbot/internal/logger"
	"github.com/okazakov/bookbot/internal/notify"
	"github.com/okazakov/bookbot/internal/recurring"
	"github.com/okazakov/bookbot/internal/storage"
	"github.com/okazakov/bookbot/internal/storage/memory"
	"github.com/okazakov/bookbot/internal/storage/postgres"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		txStore   storage.TransactionStore
		tmplStore storage.TemplateStore
		runStore  storage.RunHistoryStore
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer db.Close()

		txStore = postgres.NewTransactionStore(db)
		tmplStore = postgres.NewTemplateStore(db)
		runStore = postgres.NewRunHistoryStore(db)
		log.Info().Msg("Using Postgres stores")
	} else {
		txStore = memory.NewTransactionStore()
		tmplStore = memory.NewTemplateStore()
		runStore = memory.NewRunHistoryStore()
		log.Warn().Msg("No POSTGRES_DSN configured - using in-memory stores")
	}

	// Audit: Kafka when brokers are configured, plain log sink otherwise.
	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Audit events go to Kafka")
	} else {
		sink = audit.NewLogSink(logger.WithComponent(log, "audit"))
	}

	auth := authz.NewStaticAuthorizer(cfg.Roles)
	clock := domain.SystemClock{}

	svc := ledger.NewService(txStore, auth, sink, clock, logger.WithComponent(log, "ledger"), ledger.Config{
		AutoApprovalThreshold: cfg.AutoApprovalThreshold,
		ReferencePrefix:       cfg.ReferencePrefix,
	})

	dispatcher := notify.NewLogDispatcher(logger.WithComponent(log, "notify"))
	engine := recurring.NewEngine(tmplStore, runStore, svc, dispatcher, clock, logger.WithComponent(log, "recurring"), cfg.ClaimTTL)

	router := handlers.NewRouter(
		handlers.NewTransactionsHandler(svc, logger.WithComponent(log, "api")),
		handlers.NewTemplatesHandler(engine, logger.WithComponent(log, "api")),
		log,
	)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
