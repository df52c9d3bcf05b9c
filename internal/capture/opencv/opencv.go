// Package opencv reads frames from cameras and video files using GoCV (OpenCV).
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/saturnino-fabrica-de-software/presenca/internal/capture"
)

// ErrCaptureClosed is returned when reading from a closed source
var ErrCaptureClosed = errors.New("video capture is closed")

// Open returns the source named by source: a camera index, a directory of
// images or a video file. Camera and video frames are down-scaled by scale
// when it is below 1.
func Open(source string, scale float64, logger *slog.Logger) (capture.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kind, path, err := capture.Resolve(source)
	if err != nil {
		return nil, err
	}

	switch kind {
	case capture.KindDirectory:
		return capture.NewDirectorySource(path, scale, logger)
	case capture.KindCamera:
		index, err := capture.CameraIndex(path)
		if err != nil {
			return nil, fmt.Errorf("parse camera index: %w", err)
		}
		return OpenCamera(index, scale, logger)
	default:
		return OpenVideo(path, scale, logger)
	}
}

// VideoSource reads frames from a gocv.VideoCapture
type VideoSource struct {
	capture *gocv.VideoCapture
	mu      sync.Mutex
	scale   float64
	seq     int
	logger  *slog.Logger
	label   string
}

// OpenCamera opens the camera at index
func OpenCamera(index int, scale float64, logger *slog.Logger) (*VideoSource, error) {
	logger = logger.With("component", "capture")
	logger.Info("capture.start_camera", slog.Int("camera_index", index))

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("could not open camera index %d: %w", index, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("could not open camera index %d", index)
	}

	return newVideoSource(vc, scale, logger, "camera"), nil
}

// OpenVideo opens the video file at path
func OpenVideo(path string, scale float64, logger *slog.Logger) (*VideoSource, error) {
	logger = logger.With("component", "capture")
	logger.Info("capture.start_video", slog.String("path", path))

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open video file %s: %w", path, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("could not open video file %s", path)
	}

	return newVideoSource(vc, scale, logger, "video"), nil
}

func newVideoSource(vc *gocv.VideoCapture, scale float64, logger *slog.Logger, label string) *VideoSource {
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	return &VideoSource{
		capture: vc,
		scale:   scale,
		logger:  logger,
		label:   label,
	}
}

// Next reads one frame and encodes it as JPEG. The end of a video, or a
// camera that stops delivering, is io.EOF.
func (s *VideoSource) Next(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return capture.Frame{}, ErrCaptureClosed
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		s.logger.Info("capture." + s.label + "_complete")
		return capture.Frame{}, io.EOF
	}

	data, err := encode(mat, s.scale)
	if err != nil {
		return capture.Frame{}, err
	}

	s.seq++
	return capture.Frame{Data: data, Seq: s.seq, Scale: s.scale}, nil
}

// Close releases the capture device
func (s *VideoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}

	err := s.capture.Close()
	s.capture = nil
	return err
}

// encode down-scales mat when scale < 1 and returns it as JPEG bytes
func encode(mat gocv.Mat, scale float64) ([]byte, error) {
	src := mat
	if scale < 1 {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Point{}, scale, scale, gocv.InterpolationLinear)
		src = resized
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, src)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
