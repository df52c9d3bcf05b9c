package mock

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
)

const (
	// EncodingDimension matches the dlib descriptors used in production
	EncodingDimension = 128
	// MinFaceBytes is the smallest payload the mock treats as containing a face
	MinFaceBytes = 1000
)

// FaceBox is the single face the mock "finds" in every large enough image
var FaceBox = domain.BoundingBox{Top: 10, Right: 110, Bottom: 110, Left: 10}

// Provider implements provider.Backend for tests and offline development.
// The same bytes always produce the same encoding, so a roster photo fed back
// as a frame matches itself with distance 0.
type Provider struct{}

// New returns the mock backend
func New() *Provider {
	return &Provider{}
}

// DetectFaces reports one face for payloads of at least MinFaceBytes
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]domain.BoundingBox, error) {
	if len(image) == 0 {
		return nil, domain.ErrInvalidImage
	}
	if len(image) < MinFaceBytes {
		return []domain.BoundingBox{}, nil
	}

	return []domain.BoundingBox{FaceBox}, nil
}

// EncodeFaces derives one encoding per detected face from the image hash
func (p *Provider) EncodeFaces(ctx context.Context, image []byte, boxes []domain.BoundingBox) ([]domain.Encoding, error) {
	found, err := p.DetectFaces(ctx, image)
	if err != nil {
		return nil, err
	}

	encodings := make([]domain.Encoding, 0, len(found))
	for range found {
		encodings = append(encodings, generateEncoding(image))
	}

	if boxes == nil {
		return encodings, nil
	}
	return provider.Align(boxes, found, encodings), nil
}

// generateEncoding spreads a sha256 chain of the image over a unit-length vector
func generateEncoding(image []byte) domain.Encoding {
	block := sha256.Sum256(image)
	encoding := make(domain.Encoding, EncodingDimension)

	for i := range encoding {
		if i > 0 && i%len(block) == 0 {
			block = sha256.Sum256(block[:])
		}
		encoding[i] = (float64(block[i%len(block)])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range encoding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return encoding
	}

	for i := range encoding {
		encoding[i] /= norm
	}

	return encoding
}

var _ provider.Backend = (*Provider)(nil)
