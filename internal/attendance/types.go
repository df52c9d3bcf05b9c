package attendance

import (
	"encoding/json"
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// Payload is the body of POST /api/attendance
type Payload struct {
	StudentID  string    `json:"studentId"`
	SessionID  string    `json:"sessionId"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Present    bool      `json:"present"`
}

// NewPayload marks studentID present in sessionID at ts
func NewPayload(sessionID string, result domain.DetectionResult, ts time.Time) Payload {
	return Payload{
		StudentID:  result.Identity,
		SessionID:  sessionID,
		Timestamp:  ts.UTC(),
		Confidence: result.Confidence,
		Present:    true,
	}
}

// Result is the backend answer to a mark request
type Result struct {
	// Duplicate is set when the backend already had this student in the session (HTTP 409)
	Duplicate bool
	Body      json.RawMessage
}

// Recognized is one entry of a batch report, also the wire shape of /recognize
type Recognized struct {
	StudentID  string  `json:"student_id"`
	Confidence float64 `json:"confidence"`
	Position   *string `json:"position"`
}

// FromResults converts detection results to their wire shape
func FromResults(results []domain.DetectionResult) []Recognized {
	recognized := make([]Recognized, 0, len(results))
	for _, r := range results {
		recognized = append(recognized, Recognized{
			StudentID:  r.Identity,
			Confidence: r.Confidence,
			Position:   r.Position(),
		})
	}
	return recognized
}

type batchRequest struct {
	Recognized []Recognized `json:"recognized"`
}

// Session is a class session as exposed by the backend
type Session struct {
	ID        string     `json:"id"`
	ClassID   string     `json:"classId,omitempty"`
	Status    string     `json:"status,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}
