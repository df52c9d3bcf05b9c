package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

var ErrInvalidWindow = errors.New("dedupe window must not be negative")

// Identifier is satisfied by *Recognizer
type Identifier interface {
	Identify(ctx context.Context, frame []byte) ([]domain.DetectionResult, error)
}

// Deduplicator drops a student's sightings until window has passed since the
// last reported one. Suppressed sightings do not extend the window.
type Deduplicator struct {
	recognizer Identifier
	window     time.Duration
	history    map[string]time.Time
	logger     *slog.Logger
}

// NewDeduplicator wraps recognizer. A zero window reports every sighting,
// including ones timestamped before the last report.
func NewDeduplicator(recognizer Identifier, window time.Duration, logger *slog.Logger) (*Deduplicator, error) {
	if window < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWindow, window)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Deduplicator{
		recognizer: recognizer,
		window:     window,
		history:    make(map[string]time.Time),
		logger:     logger.With("component", "dedupe"),
	}, nil
}

// Window returns the suppression window
func (d *Deduplicator) Window() time.Duration {
	return d.window
}

// Identify runs the wrapped recognizer on frame and filters its results as
// seen at timestamp.
func (d *Deduplicator) Identify(ctx context.Context, frame []byte, timestamp time.Time) ([]domain.DetectionResult, error) {
	matches, err := d.recognizer.Identify(ctx, frame)
	if err != nil {
		return nil, err
	}
	return d.Filter(matches, timestamp), nil
}

// Filter keeps the matches whose identity was never reported or was last
// reported at least window before timestamp, and records them as reported.
func (d *Deduplicator) Filter(matches []domain.DetectionResult, timestamp time.Time) []domain.DetectionResult {
	filtered := make([]domain.DetectionResult, 0, len(matches))
	for _, match := range matches {
		last, seen := d.history[match.Identity]
		if seen && d.window > 0 && timestamp.Sub(last) < d.window {
			d.logger.Debug("recognizer.duplicate_skip",
				slog.String("student_id", match.Identity),
				slog.Time("last_seen", last),
				slog.Time("now", timestamp),
			)
			continue
		}

		d.history[match.Identity] = timestamp
		filtered = append(filtered, match)
	}
	return filtered
}

// LastSeen returns when identity was last reported
func (d *Deduplicator) LastSeen(identity string) (time.Time, bool) {
	last, ok := d.history[identity]
	return last, ok
}
