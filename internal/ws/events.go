package ws

import (
	"time"
)

type EventType string

const (
	EventAttendanceRecorded  EventType = "attendance.recorded"
	EventAttendanceDuplicate EventType = "attendance.duplicate"
	EventAttendanceQueued    EventType = "attendance.queued"
	EventRosterReloaded      EventType = "roster.reloaded"
)

type Event struct {
	SessionID string      `json:"session_id,omitempty"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
