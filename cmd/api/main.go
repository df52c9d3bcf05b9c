package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saturnino-fabrica-de-software/presenca/internal/agent"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/presenca/internal/attendance"
	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/cache"
	"github.com/saturnino-fabrica-de-software/presenca/internal/capture/opencv"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/database"
	"github.com/saturnino-fabrica-de-software/presenca/internal/face"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/recognizer"
	"github.com/saturnino-fabrica-de-software/presenca/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Presenca API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.ProviderType),
		slog.Bool("agent", cfg.AgentEnabled),
	)

	if err := cfg.EnsureRosterDir(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditLogger := audit.NewSlogLogger(logger)

	var pool *pgxpool.Pool
	var db cache.DB
	var pinger database.Pinger
	if cfg.HasDatabase() {
		pool, err = database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		db = pool
		pinger = pool
		logger.Info("database connected")
	}

	var backend provider.Backend
	if !cfg.MockRecognizer {
		backend, err = face.NewBackend(ctx, cfg, auditLogger)
		if err != nil {
			return fmt.Errorf("failed to create face backend: %w", err)
		}
		if closer, ok := backend.(io.Closer); ok {
			defer func() { _ = closer.Close() }()
		}
	}

	rec, err := face.NewRecognizer(ctx, cfg, backend, db, auditLogger, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize recognizer: %w", err)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	errChan := make(chan error, 2)

	deps := &api.Dependencies{
		Recognizer:   rec,
		DB:           pinger,
		Hub:          hub,
		ServerAPIKey: cfg.ServerAPIKey,
		RateLimit: middleware.RateLimiterConfig{
			Max:    cfg.RateLimitPerMinute,
			Window: time.Minute,
		},
	}

	if cfg.AgentEnabled {
		loop, closeSource, err := newAgent(ctx, cfg, backend, db, pool, hub, auditLogger, logger)
		if err != nil {
			return fmt.Errorf("failed to start agent: %w", err)
		}
		defer closeSource()
		deps.OnRosterReload = loop.RequestReload

		go func() {
			if _, err := loop.Run(ctx); err != nil {
				errChan <- fmt.Errorf("agent: %w", err)
			}
		}()
	}

	router := api.NewRouter(logger, deps)
	router.Setup()

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errChan:
		logger.Error("server error", slog.Any("error", runErr))
	}

	logger.Info("shutting down server...")
	stop()

	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return runErr
}

// newAgent builds a capture loop around a recognizer of its own, since the
// HTTP handlers hold theirs under a lock the loop does not take. The loop
// reloads its roster between frames whenever POST /roster/reload succeeds.
func newAgent(ctx context.Context, cfg *config.Config, backend provider.Backend, db cache.DB, pool *pgxpool.Pool, hub *ws.Hub, auditLogger audit.Logger, logger *slog.Logger) (*agent.Agent, func(), error) {
	rec, err := face.NewRecognizer(ctx, cfg, backend, db, auditLogger, logger)
	if err != nil {
		return nil, nil, err
	}

	dedupe, err := recognizer.NewDeduplicator(rec, cfg.DedupeWindow(), logger)
	if err != nil {
		return nil, nil, err
	}

	source, err := opencv.Open(cfg.FrameSource, cfg.FrameScale, logger)
	if err != nil {
		return nil, nil, err
	}
	closeSource := func() { _ = source.Close() }

	opts := []agent.Option{
		agent.WithBroadcaster(hub),
		agent.WithAuditLogger(auditLogger),
		agent.WithRoster(rec),
	}
	agentCfg := agent.Config{SessionID: cfg.SessionID, ClassID: cfg.ClassID, SessionStartedAt: time.Now().UTC()}

	var reporter agent.Reporter
	if !cfg.Offline() {
		apiCfg := attendance.DefaultConfig()
		apiCfg.BaseURL = cfg.APIBaseURL
		apiCfg.APIKey = cfg.APIKey
		apiCfg.SigningSecret = cfg.APISigningSecret
		apiCfg.Timeout = cfg.APITimeout

		client, err := attendance.NewClient(apiCfg, logger)
		if err != nil {
			closeSource()
			return nil, nil, err
		}
		reporter = client

		if pool != nil {
			outbox := attendance.NewOutbox(pool)
			opts = append(opts, agent.WithOutbox(outbox))

			worker := attendance.NewWorker(outbox, client, attendance.WorkerConfig{Interval: cfg.OutboxInterval}, logger)
			go worker.Run(ctx)
		}
	}

	loop, err := agent.New(source, dedupe, reporter, agentCfg, logger, opts...)
	if err != nil {
		closeSource()
		return nil, nil, err
	}
	return loop, closeSource, nil
}
