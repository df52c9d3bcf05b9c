// Package recognizer identifies roster students in frames and suppresses
// repeated sightings.
//
// Neither Recognizer.Identify nor Deduplicator is safe for concurrent use;
// transports that serve overlapping requests must serialize calls.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/matcher"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/roster"
)

var ErrBackendRequired = errors.New("face backend unavailable and mock mode not enabled")

// Recognizer matches the faces of a frame against the roster
type Recognizer struct {
	backend   provider.Backend
	loader    *roster.Loader
	tolerance float64
	mock      bool
	store     atomic.Pointer[roster.Store]
	audit     audit.Logger
	logger    *slog.Logger
}

type options struct {
	tolerance     float64
	mock          bool
	loaderOptions []roster.LoaderOption
	audit         audit.Logger
}

// Option configures a Recognizer
type Option func(*options)

// WithTolerance sets the maximum accepted distance (default matcher.DefaultTolerance)
func WithTolerance(tolerance float64) Option {
	return func(o *options) {
		o.tolerance = tolerance
	}
}

// WithMockBackend runs without a face backend: the roster stays empty and
// every frame yields no results
func WithMockBackend(enabled bool) Option {
	return func(o *options) {
		o.mock = enabled
	}
}

// WithLoaderOptions passes options (e.g. the encoding cache) to the roster loader
func WithLoaderOptions(opts ...roster.LoaderOption) Option {
	return func(o *options) {
		o.loaderOptions = append(o.loaderOptions, opts...)
	}
}

// WithAuditLogger records roster reloads
func WithAuditLogger(logger audit.Logger) Option {
	return func(o *options) {
		o.audit = logger
	}
}

// New builds a Recognizer and loads the roster from rosterDir.
// An invalid tolerance, a missing roster directory or a nil backend outside
// mock mode fail construction.
func New(ctx context.Context, backend provider.Backend, rosterDir string, logger *slog.Logger, opts ...Option) (*Recognizer, error) {
	o := options{tolerance: matcher.DefaultTolerance}
	for _, opt := range opts {
		opt(&o)
	}

	if err := matcher.ValidateTolerance(o.tolerance); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recognizer{
		tolerance: o.tolerance,
		mock:      o.mock,
		audit:     o.audit,
		logger:    logger.With("component", "recognizer"),
	}

	if o.mock {
		r.backend = provider.Nop{}
		r.store.Store(roster.Empty())
		r.logger.Warn("recognizer.mock_backend_enabled")
		return r, nil
	}

	if backend == nil {
		return nil, ErrBackendRequired
	}

	r.backend = backend
	r.loader = roster.NewLoader(rosterDir, backend, logger, o.loaderOptions...)

	store, err := r.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	r.store.Store(store)

	return r, nil
}

// Tolerance returns the configured match threshold
func (r *Recognizer) Tolerance() float64 {
	return r.tolerance
}

// Mock reports whether the recognizer runs in mock mode
func (r *Recognizer) Mock() bool {
	return r.mock
}

// Roster returns the current snapshot
func (r *Recognizer) Roster() *roster.Store {
	return r.store.Load()
}

// Reload re-scans the roster directory and publishes the new snapshot.
// On failure the previous snapshot stays in use.
func (r *Recognizer) Reload(ctx context.Context) (int, error) {
	if r.mock {
		return 0, nil
	}

	store, err := r.loader.Load(ctx)
	if err != nil {
		r.logAudit(ctx, false, err, nil)
		return 0, fmt.Errorf("reload roster: %w", err)
	}

	r.store.Store(store)
	r.logAudit(ctx, true, nil, map[string]string{"faces": strconv.Itoa(store.Len())})

	return store.Len(), nil
}

// analyze returns the faces of frame with their encodings, in one backend
// pass when the backend can do both at once
func (r *Recognizer) analyze(ctx context.Context, frame []byte) ([]domain.BoundingBox, []domain.Encoding, error) {
	if analyzer, ok := r.backend.(provider.FaceAnalyzer); ok {
		boxes, encodings, err := analyzer.AnalyzeFaces(ctx, frame)
		if err != nil {
			return nil, nil, fmt.Errorf("analyze faces: %w", err)
		}
		r.logger.Debug("recognizer.faces_detected", slog.Int("faces", len(boxes)))
		return boxes, encodings, nil
	}

	boxes, err := r.backend.DetectFaces(ctx, frame)
	if err != nil {
		return nil, nil, fmt.Errorf("detect faces: %w", err)
	}

	r.logger.Debug("recognizer.faces_detected", slog.Int("faces", len(boxes)))
	if len(boxes) == 0 {
		return boxes, nil, nil
	}

	encodings, err := r.backend.EncodeFaces(ctx, frame, boxes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode faces: %w", err)
	}
	return boxes, encodings, nil
}

// Identify detects the faces in frame and returns one result per face that
// matches the roster, boxes in frame coordinates. No faces is not an error.
func (r *Recognizer) Identify(ctx context.Context, frame []byte) ([]domain.DetectionResult, error) {
	results := []domain.DetectionResult{}
	if r.mock {
		return results, nil
	}

	boxes, encodings, err := r.analyze(ctx, frame)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return results, nil
	}

	known := r.Roster().Faces()
	for i, box := range boxes {
		if i >= len(encodings) || encodings[i] == nil {
			r.logger.Debug("recognizer.face_not_encoded", slog.String("box", box.String()))
			continue
		}

		match := matcher.Find(r.logger, encodings[i], known, r.tolerance)
		if match == nil {
			continue
		}

		b := box
		results = append(results, domain.DetectionResult{
			Identity:   match.Identity,
			Confidence: match.Confidence,
			Box:        &b,
		})
	}

	r.logger.Debug("recognizer.frame_identified",
		slog.Int("faces", len(boxes)),
		slog.Int("matches", len(results)),
	)

	return results, nil
}

func (r *Recognizer) logAudit(ctx context.Context, success bool, err error, metadata map[string]string) {
	if r.audit == nil {
		return
	}

	event := audit.Event{
		EventType: audit.EventRosterReloaded,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	_ = r.audit.Log(ctx, event)
}
