// Package agent runs the capture, recognition and reporting loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/presenca/internal/attendance"
	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/capture"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/ws"
)

var ErrSessionRequired = errors.New("session id is required")

// Identifier is satisfied by *recognizer.Deduplicator
type Identifier interface {
	Identify(ctx context.Context, frame []byte, timestamp time.Time) ([]domain.DetectionResult, error)
}

// Reporter is satisfied by *attendance.Client
type Reporter interface {
	MarkAttendance(ctx context.Context, payload attendance.Payload) (attendance.Result, error)
	RecordBatch(ctx context.Context, classID, sessionID string, startedAt time.Time, recognized []attendance.Recognized) error
}

// Queue is satisfied by *attendance.Outbox
type Queue interface {
	Enqueue(ctx context.Context, payload attendance.Payload, reason string) (uuid.UUID, error)
}

// Reloader is satisfied by *recognizer.Recognizer
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

// Broadcaster is satisfied by *ws.Hub
type Broadcaster interface {
	Broadcast(sessionID string, eventType ws.EventType, data interface{})
}

// Config identifies what the agent is taking attendance for
type Config struct {
	SessionID string
	// ClassID switches reporting to one batch request per frame
	ClassID          string
	SessionStartedAt time.Time
}

// Stats summarizes a run
type Stats struct {
	Frames     int
	Matches    int
	Reported   int
	Duplicates int
	Queued     int
	Failures   int
}

// Agent reads frames from a source and reports who it recognizes
type Agent struct {
	source   capture.Source
	dedupe   Identifier
	reporter Reporter
	config   Config
	outbox   Queue
	feed     Broadcaster
	audit    audit.Logger
	roster   Reloader
	reload   chan struct{}
	clock    func() time.Time
	logger   *slog.Logger
}

// Option configures an Agent
type Option func(*Agent)

// WithOutbox queues the reports the backend did not accept
func WithOutbox(outbox Queue) Option {
	return func(a *Agent) {
		a.outbox = outbox
	}
}

// WithBroadcaster publishes every reported sighting to the live feed
func WithBroadcaster(feed Broadcaster) Option {
	return func(a *Agent) {
		a.feed = feed
	}
}

func WithAuditLogger(logger audit.Logger) Option {
	return func(a *Agent) {
		a.audit = logger
	}
}

// WithRoster lets RequestReload refresh the recognizer the loop identifies with
func WithRoster(roster Reloader) Option {
	return func(a *Agent) {
		a.roster = roster
	}
}

// WithClock replaces time.Now as the source of sighting timestamps
func WithClock(clock func() time.Time) Option {
	return func(a *Agent) {
		a.clock = clock
	}
}

// New builds an agent. A nil reporter runs offline: matches are only logged.
func New(source capture.Source, dedupe Identifier, reporter Reporter, cfg Config, logger *slog.Logger, opts ...Option) (*Agent, error) {
	if reporter != nil && cfg.SessionID == "" {
		return nil, ErrSessionRequired
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Agent{
		source:   source,
		dedupe:   dedupe,
		reporter: reporter,
		config:   cfg,
		reload:   make(chan struct{}, 1),
		clock:    time.Now,
		logger:   logger.With("component", "agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run processes frames until the source is exhausted or ctx is cancelled.
// Recognition and reporting errors are logged and the loop goes on; only a
// failing source ends it with an error.
func (a *Agent) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	a.logger.InfoContext(ctx, "agent.start",
		slog.String("session_id", a.config.SessionID),
		slog.String("class_id", a.config.ClassID),
		slog.Bool("offline", a.reporter == nil),
	)

	for {
		select {
		case <-a.reload:
			a.reloadRoster(ctx)
		default:
		}

		frame, err := a.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				a.logger.InfoContext(ctx, "agent.source_exhausted", slog.Int("frames", stats.Frames))
				return stats, nil
			case ctx.Err() != nil:
				a.logger.InfoContext(ctx, "agent.stopped", slog.Int("frames", stats.Frames))
				return stats, nil
			default:
				return stats, fmt.Errorf("read frame: %w", err)
			}
		}

		stats.Frames++
		a.processFrame(ctx, frame, &stats)
	}
}

// RequestReload asks the loop to reload its roster before the next frame.
// Requests made while one is pending collapse into it. Safe for concurrent use.
func (a *Agent) RequestReload() {
	select {
	case a.reload <- struct{}{}:
	default:
	}
}

func (a *Agent) reloadRoster(ctx context.Context) {
	if a.roster == nil {
		return
	}
	faces, err := a.roster.Reload(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "agent.roster_reload_failed", slog.Any("error", err))
		return
	}
	a.logger.InfoContext(ctx, "agent.roster_reloaded", slog.Int("faces", faces))
}

func (a *Agent) processFrame(ctx context.Context, frame capture.Frame, stats *Stats) {
	now := a.clock()

	matches, err := a.dedupe.Identify(ctx, frame.Data, now)
	if err != nil {
		a.logger.ErrorContext(ctx, "agent.recognition_failed",
			slog.Int("frame", frame.Seq),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(matches) == 0 {
		return
	}

	matches = capture.RescaleResults(matches, frame.Scale)
	stats.Matches += len(matches)

	switch {
	case a.reporter == nil:
		for _, match := range matches {
			a.logger.InfoContext(ctx, "agent.recognized",
				slog.String("student_id", match.Identity),
				slog.Float64("confidence", match.Confidence),
			)
		}
	case a.config.ClassID != "":
		a.reportBatch(ctx, matches, now, stats)
	default:
		for _, match := range matches {
			a.reportOne(ctx, match, now, stats)
		}
	}
}

func (a *Agent) reportOne(ctx context.Context, match domain.DetectionResult, now time.Time, stats *Stats) {
	payload := attendance.NewPayload(a.config.SessionID, match, now)

	result, err := a.reporter.MarkAttendance(ctx, payload)
	if err != nil {
		a.logger.ErrorContext(ctx, "agent.attendance_failure",
			slog.String("student_id", match.Identity),
			slog.String("error", err.Error()),
		)
		a.queue(ctx, payload, match, err, stats)
		return
	}

	if result.Duplicate {
		stats.Duplicates++
		a.publish(ctx, ws.EventAttendanceDuplicate, audit.EventAttendanceDuplicate, match, now)
		return
	}

	stats.Reported++
	a.publish(ctx, ws.EventAttendanceRecorded, audit.EventAttendanceMarked, match, now)
}

func (a *Agent) reportBatch(ctx context.Context, matches []domain.DetectionResult, now time.Time, stats *Stats) {
	err := a.reporter.RecordBatch(ctx, a.config.ClassID, a.config.SessionID, a.config.SessionStartedAt,
		attendance.FromResults(matches))
	if err != nil {
		a.logger.ErrorContext(ctx, "agent.batch_failure",
			slog.Int("recognized", len(matches)),
			slog.String("error", err.Error()),
		)
		for _, match := range matches {
			a.queue(ctx, attendance.NewPayload(a.config.SessionID, match, now), match, err, stats)
		}
		return
	}

	stats.Reported += len(matches)
	for _, match := range matches {
		a.publish(ctx, ws.EventAttendanceRecorded, audit.EventAttendanceMarked, match, now)
	}
}

func (a *Agent) queue(ctx context.Context, payload attendance.Payload, match domain.DetectionResult, cause error, stats *Stats) {
	if a.outbox == nil {
		stats.Failures++
		return
	}

	id, err := a.outbox.Enqueue(ctx, payload, cause.Error())
	if err != nil {
		stats.Failures++
		a.logger.ErrorContext(ctx, "agent.enqueue_failed",
			slog.String("student_id", payload.StudentID),
			slog.String("error", err.Error()),
		)
		return
	}

	stats.Queued++
	a.logger.InfoContext(ctx, "agent.attendance_queued",
		slog.String("student_id", payload.StudentID),
		slog.String("entry_id", id.String()),
	)
	a.publish(ctx, ws.EventAttendanceQueued, audit.EventAttendanceQueued, match, payload.Timestamp)
}

func (a *Agent) publish(ctx context.Context, eventType ws.EventType, auditType audit.EventType, match domain.DetectionResult, ts time.Time) {
	if a.feed != nil {
		a.feed.Broadcast(a.config.SessionID, eventType, Sighting{
			StudentID:  match.Identity,
			Confidence: match.Confidence,
			Position:   match.Position(),
			SeenAt:     ts.UTC(),
		})
	}

	if a.audit != nil {
		_ = a.audit.Log(ctx, audit.Event{
			Timestamp: ts.UTC(),
			SessionID: a.config.SessionID,
			EventType: auditType,
			StudentID: match.Identity,
			Success:   auditType != audit.EventAttendanceQueued,
		})
	}
}

// Sighting is the live-feed payload of a reported student
type Sighting struct {
	StudentID  string    `json:"student_id"`
	Confidence float64   `json:"confidence"`
	Position   *string   `json:"position"`
	SeenAt     time.Time `json:"seen_at"`
}
