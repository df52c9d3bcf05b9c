// Package dlib runs face detection and 128-d encoding in-process through dlib.
// It needs the dlib shape predictor, recognition and detector model files in
// the models directory (see DLIB_MODELS_DIR).
package dlib

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync"

	"github.com/Kagami/go-face"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
)

// recognizer is the part of *face.Recognizer the provider calls
type recognizer interface {
	Recognize(imgData []byte) ([]face.Face, error)
	Close()
}

// Provider implements provider.Backend on top of go-face.
// dlib is not safe for concurrent use, so calls are serialized.
type Provider struct {
	mu  sync.Mutex
	rec recognizer
}

// NewProvider loads the dlib models from modelsDir
func NewProvider(modelsDir string) (*Provider, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", modelsDir, err)
	}
	return &Provider{rec: rec}, nil
}

// Close releases the native recognizer
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec != nil {
		p.rec.Close()
		p.rec = nil
	}
	return nil
}

func (p *Provider) recognize(img []byte) ([]face.Face, error) {
	if len(img) == 0 {
		return nil, domain.ErrInvalidImage
	}

	data, err := asJPEG(img)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec == nil {
		return nil, domain.ErrBackendUnavailable
	}

	faces, err := p.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	return faces, nil
}

// AnalyzeFaces runs dlib once and returns every face with its descriptor
func (p *Provider) AnalyzeFaces(ctx context.Context, img []byte) ([]domain.BoundingBox, []domain.Encoding, error) {
	faces, err := p.recognize(img)
	if err != nil {
		return nil, nil, err
	}
	boxes, encodings := split(faces)
	return boxes, encodings, nil
}

// DetectFaces returns the box of every face dlib finds
func (p *Provider) DetectFaces(ctx context.Context, img []byte) ([]domain.BoundingBox, error) {
	faces, err := p.recognize(img)
	if err != nil {
		return nil, err
	}

	boxes := make([]domain.BoundingBox, 0, len(faces))
	for _, f := range faces {
		boxes = append(boxes, toBoundingBox(f.Rectangle))
	}
	return boxes, nil
}

// EncodeFaces returns dlib descriptors, aligned with boxes when given
func (p *Provider) EncodeFaces(ctx context.Context, img []byte, boxes []domain.BoundingBox) ([]domain.Encoding, error) {
	faces, err := p.recognize(img)
	if err != nil {
		return nil, err
	}

	found, encodings := split(faces)
	if boxes == nil {
		return encodings, nil
	}
	return provider.Align(boxes, found, encodings), nil
}

func split(faces []face.Face) ([]domain.BoundingBox, []domain.Encoding) {
	boxes := make([]domain.BoundingBox, 0, len(faces))
	encodings := make([]domain.Encoding, 0, len(faces))
	for _, f := range faces {
		boxes = append(boxes, toBoundingBox(f.Rectangle))
		encodings = append(encodings, toEncoding(f.Descriptor))
	}
	return boxes, encodings
}

func toBoundingBox(r image.Rectangle) domain.BoundingBox {
	return domain.BoundingBox{
		Top:    r.Min.Y,
		Right:  r.Max.X,
		Bottom: r.Max.Y,
		Left:   r.Min.X,
	}
}

func toEncoding(d face.Descriptor) domain.Encoding {
	encoding := make(domain.Encoding, len(d))
	for i, v := range d {
		encoding[i] = float64(v)
	}
	return encoding
}

// asJPEG re-encodes non-JPEG input, dlib's loader only reads JPEG
func asJPEG(img []byte) ([]byte, error) {
	if len(img) > 2 && img[0] == 0xFF && img[1] == 0xD8 {
		return img, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, decoded, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	_ provider.Backend      = (*Provider)(nil)
	_ provider.FaceAnalyzer = (*Provider)(nil)
)
