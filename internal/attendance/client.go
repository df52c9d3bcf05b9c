// Package attendance reports recognized students to the attendance backend
// and keeps the reports that could not be delivered.
package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMissingBaseURL  = errors.New("attendance api base url is required")
)

// StatusError is a non-2xx backend response
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether retrying may succeed
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// Config holds the attendance backend settings
type Config struct {
	BaseURL       string
	APIKey        string
	SigningSecret string
	Timeout       time.Duration
	// MaxAttempts counts the first try
	MaxAttempts  int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// DefaultConfig retries three times with jittered exponential waits between 2s and 10s
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxAttempts:  3,
		RetryInitial: 2 * time.Second,
		RetryMax:     10 * time.Second,
	}
}

// Client talks to the attendance REST API
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewClient creates a client for cfg.BaseURL
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaults.RetryInitial
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = cfg.RetryInitial
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger.With("component", "api_client"),
	}, nil
}

// BaseURL returns the normalized backend address
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// MarkAttendance posts one attendance record. A 409 means the backend
// already has it and is reported through Result.Duplicate.
func (c *Client) MarkAttendance(ctx context.Context, payload Payload) (Result, error) {
	endpoint := c.config.BaseURL + "/api/attendance"
	c.logger.InfoContext(ctx, "api_client.mark_attendance",
		slog.String("url", endpoint),
		slog.String("student_id", payload.StudentID),
		slog.String("session_id", payload.SessionID),
	)

	body, err := c.post(ctx, endpoint, payload)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			c.logger.InfoContext(ctx, "api_client.duplicate",
				slog.String("student_id", payload.StudentID),
				slog.String("session_id", payload.SessionID),
			)
			return Result{Duplicate: true, Body: json.RawMessage(statusErr.Body)}, nil
		}
		return Result{}, err
	}

	return Result{Body: body}, nil
}

// RecordBatch reports every student recognized in one frame for a class session
func (c *Client) RecordBatch(ctx context.Context, classID, sessionID string, startedAt time.Time, recognized []Recognized) error {
	query := url.Values{}
	query.Set("classId", classID)
	query.Set("sessionId", sessionID)
	if !startedAt.IsZero() {
		query.Set("sessionStartedAt", startedAt.UTC().Format(time.RFC3339))
	}
	endpoint := c.config.BaseURL + "/api/attendance/batch?" + query.Encode()

	c.logger.InfoContext(ctx, "api_client.record_batch",
		slog.String("class_id", classID),
		slog.String("session_id", sessionID),
		slog.Int("recognized", len(recognized)),
	)

	_, err := c.post(ctx, endpoint, batchRequest{Recognized: recognized})
	return err
}

// FetchSession returns ErrSessionNotFound when the backend has no such session
func (c *Client) FetchSession(ctx context.Context, sessionID string) (*Session, error) {
	endpoint := c.config.BaseURL + "/api/sessions/" + url.PathEscape(sessionID)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// ListStudents returns the roster known to the backend
func (c *Client) ListStudents(ctx context.Context) ([]domain.Student, error) {
	body, err := c.get(ctx, c.config.BaseURL+"/api/students")
	if err != nil {
		return nil, err
	}

	var students []domain.Student
	if err := json.Unmarshal(body, &students); err != nil {
		return nil, fmt.Errorf("decode students: %w", err)
	}
	if students == nil {
		students = []domain.Student{}
	}
	return students, nil
}

// Download fetches a file. Relative URLs are resolved against the base URL.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	resolved, err := c.Resolve(rawURL)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, resolved)
}

// Resolve makes rawURL absolute against the base URL
func (c *Client) Resolve(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL, nil
	}

	base, err := url.Parse(c.config.BaseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.doWithRetry(ctx, http.MethodPost, endpoint, body)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.doWithRetry(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryInitial
	b.MaxInterval = c.config.RetryMax
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.MaxAttempts-1)), ctx)
}

// doWithRetry retries transport errors and 5xx responses; anything else is final
func (c *Client) doWithRetry(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var result []byte

	operation := func() error {
		var err error
		result, err = c.do(ctx, method, endpoint, body)
		if err == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "api_client.retry",
			slog.String("method", method),
			slog.String("url", endpoint),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(operation, c.backoff(ctx), notify); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-API-Key", c.config.APIKey)
	req.Header.Set("User-Agent", "Presenca-Agent/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if c.config.SigningSecret != "" {
			req.Header.Set(SignatureHeader, Sign(c.config.SigningSecret, body))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return respBody, nil
}
