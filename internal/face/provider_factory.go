package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider/dlib"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider/rekognition"
)

// ProviderType defines supported face recognition provider types
type ProviderType string

const (
	// ProviderTypeDlib runs dlib in-process (needs DLIB_MODELS_DIR)
	ProviderTypeDlib ProviderType = "dlib"
	// ProviderTypeDeepFace is the DeepFace HTTP service
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeRekognition detects with AWS Rekognition and encodes with DeepFace
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeMock hashes image bytes into encodings (dev/test)
	ProviderTypeMock ProviderType = "mock"
)

// NewBackend creates the detection/encoding backend selected by PROVIDER_TYPE.
// Backends holding native resources (dlib) implement io.Closer.
//
// Environment variables:
//   - PROVIDER_TYPE: "dlib", "deepface", "rekognition" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5005")
//   - DLIB_MODELS_DIR: directory with the dlib .dat models (default: "models")
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
func NewBackend(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (provider.Backend, error) {
	switch ProviderType(cfg.ProviderType) {
	case ProviderTypeDlib:
		prov, err := dlib.NewProvider(cfg.DlibModelsDir)
		if err != nil {
			return nil, fmt.Errorf("create dlib provider: %w", err)
		}
		return prov, nil

	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeRekognition:
		return createRekognitionBackend(ctx, cfg, auditLogger)

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s, %s, %s)",
			cfg.ProviderType, ProviderTypeDlib, ProviderTypeDeepFace, ProviderTypeRekognition, ProviderTypeMock)
	}
}

// createRekognitionBackend pairs the Rekognition detector with a DeepFace encoder
func createRekognitionBackend(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (provider.Backend, error) {
	rekogConfig := rekognition.DefaultConfig()
	if cfg.AWSRegion != "" {
		rekogConfig.Region = cfg.AWSRegion
	}

	var opts []rekognition.ProviderOption
	if auditLogger != nil {
		opts = append(opts, rekognition.WithAuditLogger(auditLogger))
	}

	detector, err := rekognition.NewProvider(ctx, rekogConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("create rekognition provider: %w", err)
	}

	return provider.Combine(detector, createDeepFaceProvider(cfg)), nil
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}

	return deepface.NewProvider(deepfaceConfig)
}
