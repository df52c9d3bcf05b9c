package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*Config) bool
	}{
		{
			name: "loads with all required vars",
			envVars: map[string]string{
				"PORT":         "8080",
				"ENV":          "production",
				"API_BASE_URL": "http://localhost:8080",
				"API_KEY":      "secret123",
				"SESSION_ID":   "session-1",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 8080 &&
					c.Environment == "production" &&
					c.APIBaseURL == "http://localhost:8080" &&
					c.APIKey == "secret123" &&
					c.SessionID == "session-1"
			},
		},
		{
			name: "uses defaults when optional vars missing",
			envVars: map[string]string{
				"API_BASE_URL": "http://localhost:8080",
				"API_KEY":      "secret123",
				"SESSION_ID":   "session-1",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 5001 &&
					c.Environment == "development" &&
					c.ProviderType == "deepface" &&
					c.RosterDir == "roster" &&
					c.FrameSource == "0" &&
					c.MinConfidence == 0.5 &&
					c.DedupeSeconds == 120 &&
					c.FrameScale == 1.0 &&
					c.APITimeout == 10*time.Second &&
					!c.MockRecognizer
			},
		},
		{
			name: "allows missing api settings when offline",
			envVars: map[string]string{
				"REQUIRE_API": "false",
				"SESSION_ID":  "test-session",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.SessionID == "test-session" && c.APIBaseURL == "" && c.APIKey == ""
			},
		},
		{
			name: "fails when API_KEY missing",
			envVars: map[string]string{
				"API_BASE_URL": "http://localhost:8080",
				"SESSION_ID":   "session-1",
			},
			wantErr: true,
		},
		{
			name: "fails on negative tolerance",
			envVars: map[string]string{
				"REQUIRE_API":    "false",
				"MIN_CONFIDENCE": "-0.1",
			},
			wantErr: true,
		},
		{
			name: "fails on negative dedupe window",
			envVars: map[string]string{
				"REQUIRE_API":    "false",
				"DEDUPE_SECONDS": "-5",
			},
			wantErr: true,
		},
		{
			name: "fails on upscaling frames",
			envVars: map[string]string{
				"REQUIRE_API": "false",
				"FRAME_SCALE": "1.5",
			},
			wantErr: true,
		},
		{
			name: "fails on non numeric tolerance",
			envVars: map[string]string{
				"REQUIRE_API":    "false",
				"MIN_CONFIDENCE": "strict",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := LoadFile("")

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error: %v", err)
				return
			}

			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Load() config check failed, got: %+v", cfg)
			}
		})
	}
}

func TestLoadFile_EnvFile(t *testing.T) {
	os.Clearenv()

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SESSION_ID=test-session\nFRAME_SOURCE=0\nREQUIRE_API=false\n"), 0o600))

	cfg, err := LoadFile(envFile)
	require.NoError(t, err)

	assert.Equal(t, "test-session", cfg.SessionID)
	assert.Equal(t, "0", cfg.FrameSource)
	assert.Empty(t, cfg.APIBaseURL)
	assert.Empty(t, cfg.APIKey)
}

func TestLoadFile_MissingFileIsNotAnError(t *testing.T) {
	os.Clearenv()
	os.Setenv("REQUIRE_API", "false")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "roster", cfg.RosterDir)
}

func TestConfig_DedupeWindow(t *testing.T) {
	c := &Config{DedupeSeconds: 60}
	assert.Equal(t, time.Minute, c.DedupeWindow())

	c.DedupeSeconds = 0
	assert.Equal(t, time.Duration(0), c.DedupeWindow())
}

func TestConfig_Offline(t *testing.T) {
	assert.True(t, (&Config{RequireAPI: false}).Offline())
	assert.False(t, (&Config{RequireAPI: false, APIBaseURL: "http://localhost:4000"}).Offline())
	assert.False(t, (&Config{RequireAPI: true}).Offline())
}

func TestConfig_ValidateRateLimit(t *testing.T) {
	c := &Config{MinConfidence: 0.5, FrameScale: 1, RosterDir: "roster", RateLimitPerMinute: -1}
	assert.ErrorContains(t, c.Validate(), "RATE_LIMIT_PER_MINUTE")

	c.RateLimitPerMinute = 0
	assert.NoError(t, c.Validate())
}

func TestConfig_EnsureRosterDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "roster")
	c := &Config{RosterDir: dir}

	require.NoError(t, c.EnsureRosterDir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsDevelopment(); got != tt.want {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"production", "production", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsProduction(); got != tt.want {
				t.Errorf("IsProduction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLoggerTo(t *testing.T) {
	t.Run("production logs json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerTo(&buf, "production")
		logger.Info("agent.start", "session_id", "s1")
		logger.Debug("hidden")

		out := buf.String()
		assert.Contains(t, out, `"msg":"agent.start"`)
		assert.Contains(t, out, `"session_id":"s1"`)
		assert.NotContains(t, out, "hidden")
	})

	t.Run("development logs text at debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerTo(&buf, "development")
		logger.Debug("recognizer.duplicate_skip")

		out := buf.String()
		assert.True(t, strings.Contains(out, "msg=recognizer.duplicate_skip"))
		assert.Contains(t, out, "service=presenca")
	})
}
