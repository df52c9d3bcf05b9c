package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_Log(t *testing.T) {
	tests := []struct {
		name          string
		event         Event
		wantEventType string
		wantHasError  bool
		wantStudent   bool
	}{
		{
			name: "face detected event",
			event: Event{
				EventType: EventFaceDetected,
				Provider:  "rekognition",
				Success:   true,
				Metadata:  map[string]string{"faces_count": "2"},
			},
			wantEventType: string(EventFaceDetected),
		},
		{
			name: "attendance marked",
			event: Event{
				SessionID: "session-42",
				EventType: EventAttendanceMarked,
				StudentID: "12345",
				Success:   true,
			},
			wantEventType: string(EventAttendanceMarked),
			wantStudent:   true,
		},
		{
			name: "failed roster reload",
			event: Event{
				EventType: EventRosterReloaded,
				Success:   false,
				Error:     "roster directory missing",
			},
			wantEventType: string(EventRosterReloaded),
			wantHasError:  true,
		},
		{
			name: "duplicate reported by upstream",
			event: Event{
				SessionID: "session-42",
				EventType: EventAttendanceDuplicate,
				StudentID: "67890",
				Success:   true,
				Source:    "rtsp://room-12",
			},
			wantEventType: string(EventAttendanceDuplicate),
			wantStudent:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			auditLogger := NewSlogLogger(logger)
			err := auditLogger.Log(context.Background(), tt.event)

			require.NoError(t, err)

			output := buf.String()
			assert.Contains(t, output, tt.wantEventType)
			assert.Contains(t, output, "audit.event")
			assert.Contains(t, output, `"component":"audit"`)

			if tt.wantHasError {
				assert.Contains(t, output, tt.event.Error)
			}
			if tt.wantStudent {
				assert.Contains(t, output, tt.event.StudentID)
			}
		})
	}
}

func TestSlogLogger_Log_GeneratesIDAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := auditLogger.Log(context.Background(), Event{EventType: EventRosterSynced, Success: true})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &logEntry))

	eventID, ok := logEntry["event_id"].(string)
	require.True(t, ok)
	_, err = uuid.Parse(eventID)
	assert.NoError(t, err)

	var data Event
	require.NoError(t, json.Unmarshal([]byte(logEntry["event_data"].(string)), &data))
	assert.False(t, data.Timestamp.IsZero())
}

func TestSlogLogger_Log_UsesProvidedID(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	expectedID := uuid.New()

	err := auditLogger.Log(context.Background(), Event{
		ID:        expectedID,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		EventType: EventAttendanceQueued,
		Success:   true,
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), expectedID.String())
	assert.Contains(t, buf.String(), "2024-01-15T10:30:00Z")
}

func TestSlogLogger_Log_UsesClock(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	auditLogger.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.FixedZone("BRT", -3*3600)) }

	require.NoError(t, auditLogger.Log(context.Background(), Event{EventType: EventAttendanceMarked}))
	assert.Contains(t, buf.String(), "2024-03-01T11:00:00Z")
}

func TestDiscard(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.NoError(t, Discard.Log(context.Background(), Event{EventType: EventFaceDetected}))
	}
}

func TestLoggerInterface_Compliance(t *testing.T) {
	var _ Logger = (*SlogLogger)(nil)
}

func TestEvent_JSONOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Event{EventType: EventRosterSynced, Success: true})
	require.NoError(t, err)

	jsonStr := string(data)
	assert.NotContains(t, jsonStr, "session_id")
	assert.NotContains(t, jsonStr, "student_id")
	assert.NotContains(t, jsonStr, "error")
	assert.NotContains(t, jsonStr, "source")
}
