package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"provenance/internal/document/store"
	"provenance/internal/jwttoken"
	"provenance/internal/ledger"
	"provenance/internal/platform/config"
	"provenance/internal/platform/httpserver"
	"provenance/internal/platform/logger"
	"provenance/internal/platform/metrics"
	platformredis "provenance/internal/platform/redis"
	"provenance/internal/reconcile"
	reconcilehandler "provenance/internal/reconcile/handler"
	"provenance/internal/review"
	reviewhandler "provenance/internal/review/handler"
	httptransport "provenance/internal/transport/http"
	"provenance/internal/verification"
	"provenance/internal/verification/cache"
	verificationhandler "provenance/internal/verification/handler"
	"provenance/pkg/platform/audit"
	auditkafka "provenance/pkg/platform/audit/publishers/kafka"
	auditmemory "provenance/pkg/platform/audit/store/memory"
	auditpostgres "provenance/pkg/platform/audit/store/postgres"
	"provenance/pkg/platform/audit/worker"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Document and status-log stores.
	var (
		records store.RecordStore
		logs    store.LogStore
	)
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres pool init failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		records = store.NewPostgresRecordStore(pool)
		logs = store.NewPostgresLogStore(pool)
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		records = store.NewInMemoryRecordStore()
		logs = store.NewInMemoryLogStore()
	}

	// Audit trail, optionally mirrored onto Kafka.
	var auditStore audit.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("audit store init failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		auditStore = auditpostgres.New(db)
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	if len(cfg.KafkaBrokers) > 0 {
		if err := auditkafka.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.KafkaTopic); err != nil {
			log.Error("kafka topic bootstrap failed", "error", err)
			os.Exit(1)
		}
		mirror, err := auditkafka.NewMirror(auditStore, cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka mirror init failed", "error", err)
			os.Exit(1)
		}
		defer mirror.Close()
		auditStore = mirror
	}
	// Audit capture goes through a buffered queue so request latency never
	// depends on the audit store.
	auditQueue := audit.NewQueue(auditStore, 256)
	auditWorker := worker.NewWorker(auditStore, auditQueue.Inbox(), log)
	go func() {
		if err := auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()
	auditPublisher := audit.NewPublisher(auditQueue)

	// Proof cache: redis when configured, in-process otherwise.
	var proofs cache.ProofCache
	redisClient, err := platformredis.New(config.RedisFromEnv())
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		proofs = cache.NewRedisCache(redisClient.Client, time.Hour, m)
	} else {
		proofs = cache.NewMemoryCache()
	}

	// The in-process ledger channel and its gateway.
	channel := ledger.NewChannel()
	defer channel.Close()
	gateway, err := ledger.Connect(channel)
	if err != nil {
		log.Error("ledger gateway init failed", "error", err)
		os.Exit(1)
	}
	defer gateway.Close()

	verificationService := verification.NewService(
		records, gateway, proofs, auditPublisher, m, log,
		cfg.SubmitTimeout, cfg.SubmitAttempts,
	)
	reviewService := review.NewService(
		records, logs, verificationService, proofs, auditPublisher, m, log,
	)
	reconcileService := reconcile.NewService(
		records, logs, gateway, proofs, auditPublisher, m, log,
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "provenance", "provenance-api")

	router := httptransport.NewRouter(log,
		verificationhandler.New(verificationService, log, jwtService, cfg.AdminTokenHash),
		reviewhandler.New(reviewService, log, jwtService, cfg.AdminTokenHash),
		reconcilehandler.New(reconcileService, log, cfg.AdminTokenHash),
	)
	srv := httpserver.New(cfg, router)

	if cfg.SweepInterval > 0 {
		go func() {
			if err := reconcileService.RunPeriodic(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("periodic reconciliation stopped", "error", err)
			}
		}()
	}

	go func() {
		log.Info("starting provenance server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
