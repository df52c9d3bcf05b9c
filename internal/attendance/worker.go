package attendance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Queue is the storage the Worker drains. *Outbox implements it.
type Queue interface {
	Due(ctx context.Context, limit int) ([]Entry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, next time.Time, reason string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Sender delivers one report. *Client implements it.
type Sender interface {
	MarkAttendance(ctx context.Context, payload Payload) (Result, error)
}

// WorkerConfig tunes the redelivery loop
type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:    5 * time.Second,
		BatchSize:   10,
		MaxAttempts: 8,
	}
}

// Worker redelivers outbox entries, waiting 2^attempts seconds between tries
type Worker struct {
	queue  Queue
	sender Sender
	config WorkerConfig
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
}

func NewWorker(queue Queue, sender Sender, config WorkerConfig, logger *slog.Logger) *Worker {
	defaults := DefaultWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:  queue,
		sender: sender,
		config: config,
		logger: logger.With("component", "outbox_worker"),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", slog.Duration("interval", w.config.Interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				w.logger.Error("failed to process outbox", "error", err)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

// ProcessOnce attempts one batch of due entries and returns how many were delivered
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	entries, err := w.queue.Due(ctx, w.config.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		ok, err := w.processEntry(ctx, entry)
		if err != nil {
			w.logger.Error("failed to process outbox entry",
				"entry_id", entry.ID,
				"student_id", entry.Payload.StudentID,
				"attempts", entry.Attempts,
				"error", err,
			)
			continue
		}
		if ok {
			delivered++
		}
	}

	return delivered, nil
}

func (w *Worker) processEntry(ctx context.Context, entry Entry) (bool, error) {
	result, err := w.sender.MarkAttendance(ctx, entry.Payload)
	if err != nil {
		return false, w.scheduleRetry(ctx, entry, err.Error())
	}

	if err := w.queue.MarkDelivered(ctx, entry.ID); err != nil {
		return false, err
	}

	w.logger.Info("outbox entry delivered",
		"entry_id", entry.ID,
		"student_id", entry.Payload.StudentID,
		"duplicate", result.Duplicate,
	)
	return true, nil
}

func (w *Worker) scheduleRetry(ctx context.Context, entry Entry, reason string) error {
	if entry.Attempts+1 >= w.config.MaxAttempts {
		w.logger.Warn("outbox entry failed", "entry_id", entry.ID, "error", reason)
		return w.queue.MarkFailed(ctx, entry.ID, reason)
	}

	delay := time.Duration(1<<entry.Attempts) * time.Second
	next := w.now().Add(delay)

	if err := w.queue.Reschedule(ctx, entry.ID, next, reason); err != nil {
		return err
	}

	w.logger.Info("outbox entry scheduled for retry",
		"entry_id", entry.ID,
		"attempts", entry.Attempts+1,
		"next_retry", next,
	)
	return nil
}
