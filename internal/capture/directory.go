package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DirectorySource plays the regular files of a directory in name order.
// Files that cannot be read or decoded as an image are skipped.
type DirectorySource struct {
	dir    string
	files  []string
	next   int
	seq    int
	scale  float64
	logger *slog.Logger
}

// NewDirectorySource lists dir once. A scale below 1 down-scales every frame.
func NewDirectorySource(dir string, scale float64, logger *slog.Logger) (*DirectorySource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if scale <= 0 || scale > 1 {
		scale = 1
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	logger = logger.With("component", "capture")
	logger.Info("capture.start_directory", slog.String("path", dir), slog.Int("files", len(files)))

	return &DirectorySource{
		dir:    dir,
		files:  files,
		scale:  scale,
		logger: logger,
	}, nil
}

// Next returns the next decodable image, or io.EOF after the last file
func (s *DirectorySource) Next(ctx context.Context) (Frame, error) {
	for s.next < len(s.files) {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		path := s.files[s.next]
		s.next++

		data, err := s.load(path)
		if err != nil {
			s.logger.Warn("capture.skip_file", slog.String("file", path), slog.String("error", err.Error()))
			continue
		}

		s.seq++
		return Frame{Data: data, Seq: s.seq, Scale: s.scale, Name: filepath.Base(path)}, nil
	}

	return Frame{}, io.EOF
}

func (s *DirectorySource) Close() error {
	s.next = len(s.files)
	return nil
}

func (s *DirectorySource) load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if s.scale == 1 {
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return Downscale(img, s.scale)
}

// Downscale resizes img by scale and encodes it as JPEG
func Downscale(img image.Image, scale float64) ([]byte, error) {
	bounds := img.Bounds()
	width := max(1, int(float64(bounds.Dx())*scale))
	height := max(1, int(float64(bounds.Dy())*scale))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
