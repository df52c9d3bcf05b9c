// Package roster loads known face encodings from a directory of photos and
// keeps that directory in sync with the attendance backend.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
)

var ErrRosterDirMissing = errors.New("roster directory missing")

// imageExtensions are matched case-insensitively
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// EncodingCache lets a reload skip the encoder for photos it has seen before.
// *cache.EncodingCache implements it.
type EncodingCache interface {
	Get(ctx context.Context, hash string) (domain.Encoding, error)
	Set(ctx context.Context, hash string, encoding domain.Encoding) error
}

// Hasher derives the cache key of a photo
type Hasher func(data []byte) string

// Loader builds Stores from the photos in a roster directory
type Loader struct {
	dir     string
	encoder provider.FaceEncoder
	cache   EncodingCache
	hash    Hasher
	logger  *slog.Logger
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithCache enables the encoding cache
func WithCache(cache EncodingCache, hash Hasher) LoaderOption {
	return func(l *Loader) {
		l.cache = cache
		l.hash = hash
	}
}

// NewLoader creates a loader for dir using encoder
func NewLoader(dir string, encoder provider.FaceEncoder, logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		dir:     dir,
		encoder: encoder,
		logger:  logger.With("component", "roster"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the roster directory
func (l *Loader) Dir() string {
	return l.dir
}

// IsRosterImage reports whether name has a roster photo extension
func IsRosterImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IdentityFromFilename returns the file stem up to the first underscore:
// "s001_a.jpg" and "s001.png" both belong to "s001".
func IdentityFromFilename(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	identity, _, _ := strings.Cut(stem, "_")
	return identity
}

// Files lists the roster photos in lexicographic order
func (l *Loader) Files() ([]string, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRosterDirMissing, l.dir)
		}
		return nil, fmt.Errorf("stat roster dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRosterDirMissing, l.dir)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read roster dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsRosterImage(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	return files, nil
}

// Load encodes every roster photo into a new Store. Unreadable photos and
// photos without a face are skipped with a warning. Only a missing directory
// or a cancelled context fails the load.
func (l *Loader) Load(ctx context.Context) (*Store, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}

	faces := make([]domain.KnownFace, 0, len(files))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(l.dir, name)
		identity := IdentityFromFilename(name)
		if identity == "" {
			l.logger.Warn("recognizer.invalid_filename", slog.String("file", path))
			continue
		}

		encoding, ok := l.encodeFile(ctx, path)
		if !ok {
			continue
		}

		faces = append(faces, domain.KnownFace{
			Identity: identity,
			Encoding: encoding,
			Source:   name,
		})
		l.logger.Info("recognizer.added_face",
			slog.String("student_id", identity),
			slog.String("file", path),
		)
	}

	l.logger.Info("recognizer.roster_loaded",
		slog.String("dir", l.dir),
		slog.Int("files", len(files)),
		slog.Int("faces", len(faces)),
	)

	return NewStore(faces), nil
}

// encodeFile returns the first encoding of the photo at path
func (l *Loader) encodeFile(ctx context.Context, path string) (domain.Encoding, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("recognizer.unreadable_file",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	var key string
	if l.cache != nil {
		key = l.hash(data)
		if encoding, err := l.cache.Get(ctx, key); err == nil && len(encoding) > 0 {
			return encoding, true
		}
	}

	encodings, err := l.encoder.EncodeFaces(ctx, data, nil)
	if err != nil {
		l.logger.Warn("recognizer.encode_failed",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if len(encodings) == 0 || len(encodings[0]) == 0 {
		l.logger.Warn("recognizer.no_face_found", slog.String("file", path))
		return nil, false
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, encodings[0]); err != nil {
			l.logger.Warn("recognizer.cache_write_failed",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
		}
	}

	return encodings[0], true
}
