package face

import (
	"context"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/cache"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
	"github.com/saturnino-fabrica-de-software/presenca/internal/recognizer"
	"github.com/saturnino-fabrica-de-software/presenca/internal/roster"
)

// NewRecognizer loads the roster with backend using the configured tolerance
// and mock switch. When db is not nil, roster encodings are cached in Postgres
// keyed by photo content, so a reload only encodes new or changed photos.
func NewRecognizer(ctx context.Context, cfg *config.Config, backend provider.Backend, db cache.DB, auditLogger audit.Logger, logger *slog.Logger) (*recognizer.Recognizer, error) {
	opts := []recognizer.Option{
		recognizer.WithTolerance(cfg.MinConfidence),
		recognizer.WithMockBackend(cfg.MockRecognizer),
	}
	if auditLogger != nil {
		opts = append(opts, recognizer.WithAuditLogger(auditLogger))
	}
	if db != nil {
		encodingCache := cache.NewEncodingCache(db, cfg.ProviderType, cfg.EncodingCacheTTL)
		opts = append(opts, recognizer.WithLoaderOptions(roster.WithCache(encodingCache, cache.ContentHash)))
	}

	return recognizer.New(ctx, backend, cfg.RosterDir, logger, opts...)
}
