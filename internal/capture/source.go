// Package capture produces the frames the recognizer runs on.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// ErrSourceNotFound is returned for a frame source that is neither a camera
// index, a directory nor an existing file.
var ErrSourceNotFound = errors.New("frame source not found")

// Frame is one encoded image (JPEG or PNG) and the factor it was scaled by.
type Frame struct {
	Data []byte
	Seq  int
	// Scale is 1 for full resolution and < 1 when the source down-scaled the frame
	Scale float64
	// Name identifies the file for directory sources
	Name string
}

// Source yields frames until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Kind is what a frame source string refers to
type Kind int

const (
	KindCamera Kind = iota
	KindDirectory
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindCamera:
		return "camera"
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Resolve classifies source: all digits is a camera index, otherwise a path
// (with ~ expanded) to a directory of images or a video file.
func Resolve(source string) (Kind, string, error) {
	source = strings.TrimSpace(source)
	if source != "" && isDigits(source) {
		return KindCamera, source, nil
	}

	path := expandHome(source)
	info, err := os.Stat(path)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrSourceNotFound, source)
	}
	if info.IsDir() {
		return KindDirectory, path, nil
	}
	return KindFile, path, nil
}

// CameraIndex parses the index of a KindCamera source
func CameraIndex(source string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(source))
}

// RescaleResults maps boxes found on a frame scaled by scale back to the
// coordinates of the raw frame. The input slice is left untouched.
func RescaleResults(results []domain.DetectionResult, scale float64) []domain.DetectionResult {
	out := make([]domain.DetectionResult, len(results))
	copy(out, results)
	if scale <= 0 || scale == 1 {
		return out
	}

	for i := range out {
		if out[i].Box == nil {
			continue
		}
		box := out[i].Box.Scale(1 / scale)
		out[i].Box = &box
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
