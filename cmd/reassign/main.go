package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeSquared-Agency/Reassign/internal/agents"
	"github.com/MikeSquared-Agency/Reassign/internal/api"
	"github.com/MikeSquared-Agency/Reassign/internal/audit"
	"github.com/MikeSquared-Agency/Reassign/internal/config"
	"github.com/MikeSquared-Agency/Reassign/internal/hermes"
	"github.com/MikeSquared-Agency/Reassign/internal/metrics"
	"github.com/MikeSquared-Agency/Reassign/internal/reassign"
	"github.com/MikeSquared-Agency/Reassign/internal/scheduler"
	"github.com/MikeSquared-Agency/Reassign/internal/scoring"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	// Hermes (optional)
	var hermesClient hermes.Client
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			hermesClient = hc
			defer hc.Close()
			logger.Info("connected to hermes")
		}
	}

	// Kafka audit mirror (optional)
	var sink audit.Sink = audit.NopSink{}
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := audit.NewKafkaSink(audit.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.AuditTopic,
			MaxAttempts:  cfg.Kafka.MaxAttempts,
			WriteTimeout: cfg.KafkaWriteTimeout(),
		}, logger)
		if err != nil {
			logger.Error("invalid kafka config", "error", err)
			os.Exit(1)
		}
		sink = ks
		logger.Info("audit mirror enabled", "topic", cfg.Kafka.AuditTopic)
	}
	defer sink.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Scorer
	tiers := scoring.Tiers{Busy: cfg.Reassignment.BusyWorkload, Overloaded: cfg.Reassignment.OverloadedWorkload}
	scorer, err := scoring.NewScorer(scoring.Config{
		Weights: scoring.WeightSet{
			CloseRate:           cfg.Scoring.Weights.CloseRate,
			AvailableBonus:      cfg.Scoring.Weights.AvailableBonus,
			BusyBonus:           cfg.Scoring.Weights.BusyBonus,
			SpecialtyBonus:      cfg.Scoring.Weights.SpecialtyBonus,
			ResponseMax:         cfg.Scoring.Weights.ResponseMax,
			ResponseUnitSeconds: cfg.Scoring.Weights.ResponseUnitSecs,
		},
		Confidence: scoring.ConfidenceWeights{
			Base:              cfg.Scoring.Confidence.Base,
			CloseRateBonus:    cfg.Scoring.Confidence.CloseRateBonus,
			CloseRateMultiple: cfg.Scoring.Confidence.CloseRateMultiple,
			AvailableBonus:    cfg.Scoring.Confidence.AvailableBonus,
			SpecialtyBonus:    cfg.Scoring.Confidence.SpecialtyBonus,
		},
		Tiers:     tiers,
		Threshold: cfg.Reassignment.ConfidenceThreshold,
	}, logger)
	if err != nil {
		logger.Error("invalid scoring config", "error", err)
		os.Exit(1)
	}

	// Reassignment service and stale sweep
	svc := reassign.New(db, hermesClient, sink, scorer, m, cfg, logger)
	svc.Start(ctx)
	defer svc.Stop()

	// Scheduled actions
	sched := scheduler.New(db, hermesClient, m, cfg, logger)
	sched.SetupSubscriptions()
	sched.Start(ctx)
	defer sched.Stop()
	logger.Info("scheduler started", "poll_interval", cfg.PollInterval(), "redeliver_after", cfg.RedeliverAfter())

	// Agents
	agentClient := agents.NewHTTPClient(cfg.Agents.ProxyURL, cfg.Agents.Token, cfg.AgentTimeout())
	dispatcher := agents.NewDispatcher(db, agentClient, agents.DefaultRegistry(), hermesClient, m, logger)

	// API server
	router := api.NewRouter(db, svc, sched, dispatcher, tiers, cfg.Server, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := store.NewSQLiteStore(cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return db, nil
	default:
		db, err := store.NewPostgresStore(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return db, nil
	}
}
