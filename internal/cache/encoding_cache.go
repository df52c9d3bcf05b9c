package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

var (
	// ErrCacheMiss is returned when a key is not found in cache
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheExpired is returned when a cached value has expired
	ErrCacheExpired = errors.New("cache expired")
)

// DB interface for database operations (compatible with pgxpool.Pool and pgxmock)
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// EncodingCache stores roster encodings by photo content hash so a reload
// only calls the encoder for new or changed photos. Entries are scoped by
// provider since encodings from different models are not comparable.
type EncodingCache struct {
	db       DB
	provider string
	ttl      time.Duration
	now      func() time.Time
}

// NewEncodingCache creates a cache for encodings produced by provider
func NewEncodingCache(db DB, provider string, ttl time.Duration) *EncodingCache {
	return &EncodingCache{
		db:       db,
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
	}
}

// ContentHash is the cache key for a roster photo
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get retrieves an encoding by content hash
func (c *EncodingCache) Get(ctx context.Context, hash string) (domain.Encoding, error) {
	query := `
		SELECT encoding, expires_at
		FROM roster_encodings
		WHERE content_hash = $1 AND provider = $2
	`

	var vec pgvector.Vector
	var expiresAt time.Time

	err := c.db.QueryRow(ctx, query, hash, c.provider).Scan(&vec, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get encoding: %w", err)
	}

	if c.now().After(expiresAt) {
		_ = c.Delete(ctx, hash)
		return nil, ErrCacheExpired
	}

	floats := vec.Slice()
	encoding := make(domain.Encoding, len(floats))
	for i, v := range floats {
		encoding[i] = float64(v)
	}

	return encoding, nil
}

// Set stores an encoding with the cache TTL
func (c *EncodingCache) Set(ctx context.Context, hash string, encoding domain.Encoding) error {
	query := `
		INSERT INTO roster_encodings (content_hash, provider, encoding, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash, provider) DO UPDATE
		SET encoding = EXCLUDED.encoding,
		    expires_at = EXCLUDED.expires_at,
		    created_at = NOW()
	`

	floats := make([]float32, len(encoding))
	for i, v := range encoding {
		floats[i] = float32(v)
	}

	expiresAt := c.now().Add(c.ttl)
	if _, err := c.db.Exec(ctx, query, hash, c.provider, pgvector.NewVector(floats), expiresAt); err != nil {
		return fmt.Errorf("set encoding: %w", err)
	}
	return nil
}

// Delete removes one entry
func (c *EncodingCache) Delete(ctx context.Context, hash string) error {
	query := `DELETE FROM roster_encodings WHERE content_hash = $1 AND provider = $2`
	_, err := c.db.Exec(ctx, query, hash, c.provider)
	return err
}

// CleanupExpired removes all expired entries
func (c *EncodingCache) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM roster_encodings WHERE expires_at < NOW()`
	result, err := c.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
