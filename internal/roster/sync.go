package roster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// StudentSource is the backend the roster is pulled from.
// *attendance.Client implements it.
type StudentSource interface {
	ListStudents(ctx context.Context) ([]domain.Student, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Progress is called after each student is processed
type Progress func(done, total int)

// Syncer replaces the roster directory with the backend's student photos
type Syncer struct {
	source   StudentSource
	dir      string
	logger   *slog.Logger
	progress Progress
}

// SyncerOption configures a Syncer
type SyncerOption func(*Syncer)

// WithProgress reports per-student progress, e.g. to a terminal bar
func WithProgress(progress Progress) SyncerOption {
	return func(s *Syncer) {
		s.progress = progress
	}
}

// NewSyncer creates a syncer writing into dir
func NewSyncer(source StudentSource, dir string, logger *slog.Logger, opts ...SyncerOption) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		source: source,
		dir:    dir,
		logger: logger.With("component", "roster_sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync writes one {externalId}.jpg per student with a photo and returns how
// many were written. The student list is fetched before the directory is
// cleared, so a backend outage leaves the current roster in place.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create roster dir: %w", err)
	}

	students, err := s.source.ListStudents(ctx)
	if err != nil {
		s.logger.Error("roster_sync.fetch_failed", slog.String("error", err.Error()))
		return 0, fmt.Errorf("list students: %w", err)
	}

	s.clear()

	written := 0
	for i, student := range students {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		if s.syncStudent(ctx, student) {
			written++
		}
		if s.progress != nil {
			s.progress(i+1, len(students))
		}
	}

	s.logger.Info("roster_sync.completed",
		slog.Int("downloaded", written),
		slog.Int("students", len(students)),
		slog.String("dir", s.dir),
	)

	return written, nil
}

func (s *Syncer) syncStudent(ctx context.Context, student domain.Student) bool {
	if student.ExternalID == "" || student.PhotoURL == "" {
		return false
	}
	if strings.ContainsAny(student.ExternalID, `/\`) || student.ExternalID == "." || student.ExternalID == ".." {
		s.logger.Warn("roster_sync.invalid_id", slog.String("student", student.ExternalID))
		return false
	}

	data, err := s.source.Download(ctx, student.PhotoURL)
	if err != nil {
		s.logger.Warn("roster_sync.download_failed",
			slog.String("student", student.ExternalID),
			slog.String("url", student.PhotoURL),
			slog.String("error", err.Error()),
		)
		return false
	}

	dest := filepath.Join(s.dir, student.ExternalID+".jpg")
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		s.logger.Warn("roster_sync.write_failed",
			slog.String("student", student.ExternalID),
			slog.String("path", dest),
			slog.String("error", err.Error()),
		)
		return false
	}

	return true
}

// clear removes the stale photos, subdirectories are left alone
func (s *Syncer) clear() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("roster_sync.cleanup_failed", slog.String("path", s.dir), slog.String("error", err.Error()))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("roster_sync.cleanup_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}
