package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Provider implements provider.FaceDetector using AWS Rekognition.
// Rekognition does not expose embeddings, so encoding is delegated elsewhere
// (see provider.Combine).
type Provider struct {
	client      *Client
	auditLogger audit.Logger
}

// ProviderOption defines optional configuration for Provider
type ProviderOption func(*Provider)

// WithAuditLogger sets the audit logger for the provider
func WithAuditLogger(logger audit.Logger) ProviderOption {
	return func(p *Provider) {
		p.auditLogger = logger
	}
}

var _ provider.FaceDetector = (*Provider)(nil)

// NewProvider creates a new Rekognition detector
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}

	return newProvider(client, opts...), nil
}

func newProvider(client *Client, opts ...ProviderOption) *Provider {
	p := &Provider{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// logAudit logs an audit event if an audit logger is configured
// Audit failure does not affect the operation (fire-and-forget)
func (p *Provider) logAudit(ctx context.Context, success bool, err error, metadata map[string]string) {
	if p.auditLogger == nil {
		return
	}

	event := audit.Event{
		EventType: audit.EventFaceDetected,
		Provider:  "rekognition",
		Success:   success,
		Metadata:  metadata,
	}

	if err != nil {
		event.Error = err.Error()
	}

	_ = p.auditLogger.Log(ctx, event)
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return domain.ErrInvalidImage
	}
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", domain.ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", domain.ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// DetectFaces detects faces using the Rekognition DetectFaces API and returns
// pixel boxes. Returns an empty slice if no faces are detected (not an error).
func (p *Provider) DetectFaces(ctx context.Context, img []byte) ([]domain.BoundingBox, error) {
	meta := map[string]string{"image_size": strconv.Itoa(len(img))}

	if err := validateImage(img); err != nil {
		p.logAudit(ctx, false, err, meta)
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		err = fmt.Errorf("%w: %w: %v", domain.ErrInvalidImage, ErrUnknownDimensions, err)
		p.logAudit(ctx, false, err, meta)
		return nil, err
	}

	output, err := p.client.rekognition.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: img},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		err = parseDetectError(err)
		p.logAudit(ctx, false, err, meta)
		return nil, err
	}

	boxes := make([]domain.BoundingBox, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil {
			continue
		}
		if detail.Confidence != nil && *detail.Confidence < p.client.config.MinConfidence {
			continue
		}
		if detail.Quality != nil && qualityScore(detail.Quality) < p.client.config.MinQuality {
			continue
		}
		boxes = append(boxes, toPixels(detail.BoundingBox, cfg.Width, cfg.Height))
	}

	meta["faces_count"] = strconv.Itoa(len(boxes))
	p.logAudit(ctx, true, nil, meta)

	return boxes, nil
}

// toPixels converts Rekognition's ratio box into pixel edges clamped to the frame
func toPixels(box *types.BoundingBox, width, height int) domain.BoundingBox {
	ratio := func(v *float32) float64 {
		if v == nil {
			return 0
		}
		return float64(*v)
	}

	left := ratio(box.Left) * float64(width)
	top := ratio(box.Top) * float64(height)
	right := left + ratio(box.Width)*float64(width)
	bottom := top + ratio(box.Height)*float64(height)

	clamp := func(v float64, max int) int {
		return int(math.Round(math.Min(math.Max(v, 0), float64(max))))
	}

	return domain.BoundingBox{
		Top:    clamp(top, height),
		Right:  clamp(right, width),
		Bottom: clamp(bottom, height),
		Left:   clamp(left, width),
	}
}

// qualityScore computes an overall quality score from Rekognition quality metrics
// Returns a score between 0.0 (poor quality) and 1.0 (excellent quality)
func qualityScore(quality *types.ImageQuality) float64 {
	if quality == nil {
		return 0.0
	}

	brightness := 0.0
	sharpness := 0.0

	if quality.Brightness != nil {
		brightness = float64(*quality.Brightness) / 100.0
	}

	if quality.Sharpness != nil {
		sharpness = float64(*quality.Sharpness) / 100.0
	}

	// Sharpness weighs more for recognition
	return brightness*0.3 + sharpness*0.7
}
