package deepface

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
)

// Provider implements provider.Backend using the DeepFace API
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// DetectFaces detects faces in the image
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]domain.BoundingBox, error) {
	if len(image) == 0 {
		return nil, domain.ErrInvalidImage
	}

	resp, err := p.client.Represent(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	boxes := make([]domain.BoundingBox, 0, len(resp.Results))
	for _, result := range resp.Results {
		boxes = append(boxes, toBoundingBox(result.FacialArea))
	}

	return boxes, nil
}

// AnalyzeFaces makes one /represent call and returns every face with its embedding
func (p *Provider) AnalyzeFaces(ctx context.Context, image []byte) ([]domain.BoundingBox, []domain.Encoding, error) {
	if len(image) == 0 {
		return nil, nil, domain.ErrInvalidImage
	}

	resp, err := p.client.Represent(ctx, image)
	if err != nil {
		return nil, nil, fmt.Errorf("analyze faces: %w", err)
	}

	boxes, encodings := split(resp.Results)
	return boxes, encodings, nil
}

// EncodeFaces returns one embedding per face. When boxes is not nil the
// result is aligned with it, with nil where DeepFace found no matching face.
func (p *Provider) EncodeFaces(ctx context.Context, image []byte, boxes []domain.BoundingBox) ([]domain.Encoding, error) {
	if len(image) == 0 {
		return nil, domain.ErrInvalidImage
	}

	resp, err := p.client.Represent(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("encode faces: %w", err)
	}

	found, encodings := split(resp.Results)
	if boxes == nil {
		return encodings, nil
	}
	return provider.Align(boxes, found, encodings), nil
}

func split(results []RepresentResult) ([]domain.BoundingBox, []domain.Encoding) {
	boxes := make([]domain.BoundingBox, 0, len(results))
	encodings := make([]domain.Encoding, 0, len(results))
	for _, result := range results {
		boxes = append(boxes, toBoundingBox(result.FacialArea))
		encodings = append(encodings, domain.Encoding(result.Embedding))
	}
	return boxes, encodings
}

// toBoundingBox converts DeepFace's x/y/w/h area into edge coordinates
func toBoundingBox(area FacialArea) domain.BoundingBox {
	return domain.BoundingBox{
		Top:    area.Y,
		Right:  area.X + area.W,
		Bottom: area.Y + area.H,
		Left:   area.X,
	}
}

var (
	_ provider.Backend      = (*Provider)(nil)
	_ provider.FaceAnalyzer = (*Provider)(nil)
)
