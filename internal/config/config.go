package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port         int    `envconfig:"PORT" default:"5001"`
	Environment  string `envconfig:"ENV" default:"development"`
	ServerAPIKey string `envconfig:"SERVER_API_KEY"`
	AgentEnabled bool   `envconfig:"AGENT_ENABLED" default:"false"`
	// RateLimitPerMinute caps requests per client on the protected routes, 0 disables the limiter
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600"`

	// Attendance API
	APIBaseURL       string        `envconfig:"API_BASE_URL"`
	APIKey           string        `envconfig:"API_KEY"`
	APISigningSecret string        `envconfig:"API_SIGNING_SECRET"`
	APITimeout       time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	RequireAPI       bool          `envconfig:"REQUIRE_API" default:"true"`
	SessionID        string        `envconfig:"SESSION_ID"`
	ClassID          string        `envconfig:"CLASS_ID"`

	// Recognition
	RosterDir      string  `envconfig:"ROSTER_DIR" default:"roster"`
	FrameSource    string  `envconfig:"FRAME_SOURCE" default:"0"`
	FrameScale     float64 `envconfig:"FRAME_SCALE" default:"1.0"`
	MinConfidence  float64 `envconfig:"MIN_CONFIDENCE" default:"0.5"`
	DedupeSeconds  int     `envconfig:"DEDUPE_SECONDS" default:"120"`
	MockRecognizer bool    `envconfig:"MOCK_RECOGNIZER" default:"false"`

	// Provider
	ProviderType  string `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DeepFaceURL   string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DlibModelsDir string `envconfig:"DLIB_MODELS_DIR" default:"models"`
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Database (optional: enables the encoding cache and the attendance outbox)
	DatabaseURL      string        `envconfig:"DATABASE_URL"`
	EncodingCacheTTL time.Duration `envconfig:"ENCODING_CACHE_TTL" default:"720h"`
	OutboxInterval   time.Duration `envconfig:"OUTBOX_INTERVAL" default:"5s"`
}

// Load reads .env from the working directory (if present) and then the process environment
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file. A missing file is not an error;
// variables already set in the environment win over the file.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values the recognition pipeline cannot run with
func (c *Config) Validate() error {
	if math.IsNaN(c.MinConfidence) || math.IsInf(c.MinConfidence, 0) || c.MinConfidence < 0 {
		return fmt.Errorf("invalid MIN_CONFIDENCE %v: must be a non-negative distance", c.MinConfidence)
	}
	if c.DedupeSeconds < 0 {
		return fmt.Errorf("invalid DEDUPE_SECONDS %d: must be >= 0", c.DedupeSeconds)
	}
	if c.FrameScale <= 0 || c.FrameScale > 1 {
		return fmt.Errorf("invalid FRAME_SCALE %v: must be in (0, 1]", c.FrameScale)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE %d: must be >= 0", c.RateLimitPerMinute)
	}
	if c.RosterDir == "" {
		return errors.New("ROSTER_DIR must not be empty")
	}

	if c.RequireAPI {
		for name, value := range map[string]string{
			"API_BASE_URL": c.APIBaseURL,
			"API_KEY":      c.APIKey,
			"SESSION_ID":   c.SessionID,
		} {
			if value == "" {
				return fmt.Errorf("missing required environment variable: %s", name)
			}
		}
	}

	return nil
}

// EnsureRosterDir creates the roster directory when it does not exist yet
func (c *Config) EnsureRosterDir() error {
	if err := os.MkdirAll(c.RosterDir, 0o755); err != nil {
		return fmt.Errorf("create roster dir %s: %w", c.RosterDir, err)
	}
	return nil
}

func (c *Config) DedupeWindow() time.Duration {
	return time.Duration(c.DedupeSeconds) * time.Second
}

// Offline reports whether attendance is only logged, never posted
func (c *Config) Offline() bool {
	return !c.RequireAPI && c.APIBaseURL == ""
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
