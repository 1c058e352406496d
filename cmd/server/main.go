// Command server wires the evidence lifecycle engine and serves its HTTP API.
// Business logic lives in internal packages; this file only assembles
// dependencies and owns process lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"provenance/internal/attestation"
	"provenance/internal/audit"
	auditkafka "provenance/internal/audit/kafka"
	"provenance/internal/chain"
	"provenance/internal/ledger"
	"provenance/internal/lifecycle"
	lifecyclemetrics "provenance/internal/lifecycle/metrics"
	"provenance/internal/platform/config"
	"provenance/internal/platform/httpserver"
	"provenance/internal/platform/logger"
	"provenance/internal/platform/redisclient"
	"provenance/internal/policy"
	"provenance/internal/scheduler"
	httptransport "provenance/internal/transport/http"
	"provenance/internal/trust"
	"provenance/internal/verification"
	vcache "provenance/internal/verification/cache"
	verificationmetrics "provenance/internal/verification/metrics"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ledger store: postgres when configured, in-memory otherwise.
	var store ledger.Store = ledger.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = ledger.NewPostgresStore(db)
		log.Info("using postgres ledger store")
	}

	// Redis backs the attestation token store and the compliance cache.
	var tokenStore attestation.TokenStore = attestation.NewMemoryTokenStore()
	var complianceCache *vcache.Cache
	redisConn, err := redisclient.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisConn != nil {
		defer redisConn.Close()
		tokenStore = attestation.NewRedisTokenStore(redisConn.Client)
		complianceCache = vcache.New(redisConn.Client, policy.ClassificationCacheTTL)
		log.Info("using redis attestation store and compliance cache")
	}

	// Audit: the in-process store always backs the audit trail endpoint; with
	// brokers configured, events fan out to Kafka as well.
	auditStore := audit.NewMemoryStore()
	var auditPublisher audit.Publisher = audit.NewStorePublisher(auditStore)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err := auditkafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaPub.Close()
		auditPublisher = audit.Fanout{auditPublisher, kafkaPub}
		log.Info("publishing audit events to kafka", "topic", cfg.KafkaAuditTopic)
	}

	chainClient := chain.NewMemoryClient()
	trustCalc := trust.NewCalculator(trust.WithLogger(log))
	attVerifier := attestation.NewVerifier(cfg.AttestationSigningKey, cfg.AttestationIssuer, tokenStore, log)

	aggregator := verification.NewAggregator(verification.Config{
		Chain:             chainClient,
		Trust:             trustCalc,
		Identity:          attVerifier,
		Logger:            log,
		Metrics:           verificationmetrics.New(),
		Timeout:           policy.VerificationTimeout,
		AdequateThreshold: policy.TrustAdequateThreshold,
		FullThreshold:     policy.TrustFullThreshold,
	})

	svc, err := lifecycle.NewService(lifecycle.Config{
		Store:           store,
		Chain:           chainClient,
		Trust:           trustCalc,
		Verifier:        aggregator,
		Cache:           complianceCache,
		Audit:           auditPublisher,
		Logger:          log,
		Metrics:         lifecyclemetrics.New(),
		FreezeWindow:    cfg.FreezeWindow,
		RetentionPeriod: cfg.RetentionPeriod,
	})
	if err != nil {
		log.Error("assemble lifecycle service", "error", err)
		os.Exit(1)
	}

	sweeper := scheduler.NewSweeper(store, sweepHandler(svc, cfg.AutoMint, log),
		scheduler.WithLogger(log),
		sweepWindowOption(cfg.FreezeWindow),
	)
	go func() {
		if err := sweeper.Run(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stopped", "error", err)
		}
	}()

	handler := httptransport.NewHandler(svc, attVerifier, auditStore, log)
	router := httptransport.NewRouter(handler, log)
	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting provenance engine", "addr", cfg.Addr)
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

// sweepHandler logs every signal and, when autoMint is on, drives eligible
// records through mint. Purge stays signal-only: deleting evidence is an
// operator decision.
func sweepHandler(svc *lifecycle.Service, autoMint bool, log *slog.Logger) scheduler.Handler {
	return scheduler.HandlerFunc(func(ctx context.Context, signal scheduler.Signal) error {
		log.Info("sweep signal",
			"kind", string(signal.Kind),
			"record_id", signal.RecordID,
			"due", signal.Due,
		)
		if autoMint && signal.Kind == scheduler.SignalMintEligible {
			if _, err := svc.Mint(ctx, signal.RecordID); err != nil {
				// Another caller may have minted first; the sweep goes on.
				log.Warn("auto mint failed", "record_id", signal.RecordID, "error", err)
			}
		}
		return nil
	})
}

func sweepWindowOption(window time.Duration) scheduler.Option {
	if window > 0 {
		return scheduler.WithFreezeWindow(window)
	}
	return func(*scheduler.Sweeper) {}
}
