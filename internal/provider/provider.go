package provider

import (
	"context"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// FaceDetector locates faces in an encoded image (JPEG, PNG or WebP)
type FaceDetector interface {
	// DetectFaces returns one box per face, in pixel coordinates of image.
	// An image without faces yields an empty slice, not an error.
	DetectFaces(ctx context.Context, image []byte) ([]domain.BoundingBox, error)
}

// FaceEncoder turns faces into encoding vectors
type FaceEncoder interface {
	// EncodeFaces encodes the faces of image. With boxes == nil every face the
	// encoder finds is encoded (roster photos). Otherwise the result is aligned
	// with boxes and a box that could not be encoded yields a nil entry.
	EncodeFaces(ctx context.Context, image []byte, boxes []domain.BoundingBox) ([]domain.Encoding, error)
}

// Backend is the full capability the recognizer needs
type Backend interface {
	FaceDetector
	FaceEncoder
}

// FaceAnalyzer detects and encodes in a single pass. The recognizer prefers
// it over DetectFaces followed by EncodeFaces when a backend satisfies it.
type FaceAnalyzer interface {
	// AnalyzeFaces returns every face of image with its encoding; the two
	// slices are positionally aligned.
	AnalyzeFaces(ctx context.Context, image []byte) ([]domain.BoundingBox, []domain.Encoding, error)
}

// Nop is the backend selected in mock mode: it never sees a face
type Nop struct{}

func (Nop) DetectFaces(ctx context.Context, image []byte) ([]domain.BoundingBox, error) {
	return []domain.BoundingBox{}, nil
}

func (Nop) EncodeFaces(ctx context.Context, image []byte, boxes []domain.BoundingBox) ([]domain.Encoding, error) {
	return make([]domain.Encoding, len(boxes)), nil
}

type combined struct {
	FaceDetector
	FaceEncoder
}

// Combine pairs a detector and an encoder coming from different providers
func Combine(detector FaceDetector, encoder FaceEncoder) Backend {
	return combined{FaceDetector: detector, FaceEncoder: encoder}
}

var _ Backend = Nop{}
