package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType names an auditable biometric or attendance action
type EventType string

const (
	EventFaceDetected        EventType = "FACE_DETECTED"
	EventRosterReloaded      EventType = "ROSTER_RELOADED"
	EventRosterSynced        EventType = "ROSTER_SYNCED"
	EventAttendanceMarked    EventType = "ATTENDANCE_MARKED"
	EventAttendanceDuplicate EventType = "ATTENDANCE_DUPLICATE"
	EventAttendanceQueued    EventType = "ATTENDANCE_QUEUED"
)

// Event is one entry in the biometric trail. Encodings never go in here.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	SessionID string            `json:"session_id,omitempty"`
	EventType EventType         `json:"event_type"`
	StudentID string            `json:"student_id,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Source    string            `json:"source,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Logger interface {
	Log(ctx context.Context, event Event) error
}

// Discard drops every event
var Discard Logger = discard{}

type discard struct{}

func (discard) Log(context.Context, Event) error { return nil }

// SlogLogger writes events as structured log lines
type SlogLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// Log fills in a missing ID and timestamp, then emits one "audit.event" line
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "audit.marshal_failed",
			slog.String("event_type", string(event.EventType)),
			slog.Any("error", err),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit.event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("session_id", event.SessionID),
		slog.String("student_id", event.StudentID),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(data)),
	)
	return nil
}
