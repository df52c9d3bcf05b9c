package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/presenca/internal/agent"
	"github.com/saturnino-fabrica-de-software/presenca/internal/attendance"
	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/cache"
	"github.com/saturnino-fabrica-de-software/presenca/internal/capture/opencv"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/face"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/recognizer"
)

type runOptions struct {
	SessionID      string
	Source         string
	MockRecognizer bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Recognize students from a camera, video or image directory and report attendance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd.Context(), cmd, runOpts)
	},
}

func init() {
	runCmd.Flags().StringVar(&runOpts.SessionID, "session-id", "", "Attendance session id (overrides SESSION_ID)")
	runCmd.Flags().StringVar(&runOpts.Source, "source", "", "Camera index, video file or image directory (overrides FRAME_SOURCE)")
	runCmd.Flags().BoolVar(&runOpts.MockRecognizer, "mock-recognizer", false, "Run without a recognition backend; nothing is ever identified")

	rootCmd.AddCommand(runCmd)
}

func runAgent(ctx context.Context, cmd *cobra.Command, opts runOptions) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg, opts)

	if err := cfg.EnsureRosterDir(); err != nil {
		return err
	}

	auditLogger := audit.NewSlogLogger(logger)

	pool, err := openPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	backend, err := newBackend(ctx, cfg, auditLogger)
	if err != nil {
		return err
	}
	defer closeBackend(backend, logger)

	var db cache.DB
	if pool != nil {
		db = pool
	}
	rec, err := face.NewRecognizer(ctx, cfg, backend, db, auditLogger, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize recognizer: %w", err)
	}

	dedupe, err := recognizer.NewDeduplicator(rec, cfg.DedupeWindow(), logger)
	if err != nil {
		return err
	}

	source, err := opencv.Open(cfg.FrameSource, cfg.FrameScale, logger)
	if err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}
	defer func() { _ = source.Close() }()

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	agentCfg := agent.Config{SessionID: cfg.SessionID, ClassID: cfg.ClassID}
	agentOpts := []agent.Option{agent.WithAuditLogger(auditLogger)}
	var reporter agent.Reporter

	if client != nil {
		reporter = client
		resolveSession(ctx, client, &agentCfg, logger)

		if pool != nil {
			outbox := attendance.NewOutbox(pool)
			agentOpts = append(agentOpts, agent.WithOutbox(outbox))

			worker := attendance.NewWorker(outbox, client, attendance.WorkerConfig{Interval: cfg.OutboxInterval}, logger)
			go worker.Run(ctx)
			defer worker.Stop()
		}
	}

	a, err := agent.New(source, dedupe, reporter, agentCfg, logger, agentOpts...)
	if err != nil {
		return err
	}

	stats, err := a.Run(ctx)
	logger.Info("agent.finished",
		slog.Int("frames", stats.Frames),
		slog.Int("matches", stats.Matches),
		slog.Int("reported", stats.Reported),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("queued", stats.Queued),
		slog.Int("failures", stats.Failures),
	)
	return err
}

// applyRunFlags lets explicitly set flags win over the environment
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts runOptions) {
	if cmd.Flags().Changed("session-id") {
		cfg.SessionID = opts.SessionID
	}
	if cmd.Flags().Changed("source") {
		cfg.FrameSource = opts.Source
	}
	if cmd.Flags().Changed("mock-recognizer") {
		cfg.MockRecognizer = opts.MockRecognizer
	}
}

// resolveSession fills the class and start time from the backend when the
// environment does not set them. A lookup failure only disables batching.
func resolveSession(ctx context.Context, client *attendance.Client, cfg *agent.Config, logger *slog.Logger) {
	if cfg.SessionID == "" {
		return
	}

	session, err := client.FetchSession(ctx, cfg.SessionID)
	if err != nil {
		if errors.Is(err, attendance.ErrSessionNotFound) {
			logger.Warn("agent.session_not_found", slog.String("session_id", cfg.SessionID))
		} else {
			logger.Warn("agent.session_lookup_failed", slog.String("error", err.Error()))
		}
		return
	}

	if cfg.ClassID == "" {
		cfg.ClassID = session.ClassID
	}
	if session.StartedAt != nil {
		cfg.SessionStartedAt = *session.StartedAt
	} else {
		cfg.SessionStartedAt = time.Now().UTC()
	}
}

// newBackend creates the configured backend; mock mode needs none
func newBackend(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (provider.Backend, error) {
	if cfg.MockRecognizer {
		return nil, nil
	}

	backend, err := face.NewBackend(ctx, cfg, auditLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create face backend: %w", err)
	}
	return backend, nil
}

// closeBackend releases native resources held by backends such as dlib
func closeBackend(backend provider.Backend, logger *slog.Logger) {
	closer, ok := backend.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("recognizer.backend_close_failed", slog.String("error", err.Error()))
	}
}
