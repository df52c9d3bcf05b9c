package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds the configuration for the DeepFace client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Model      string
	Detector   string
	RetryCount int
	// RetryWait is the first backoff step, doubled on each retry
	RetryWait time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
// Dlib produces the same 128-d descriptors the roster tolerance is tuned for.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:5005",
		Timeout:    30 * time.Second,
		Model:      "Dlib",
		Detector:   "retinaface",
		RetryCount: 3,
		RetryWait:  time.Second,
	}
}

// Client is the HTTP client for DeepFace API
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new DeepFace client
func NewClient(config Config) *Client {
	if config.RetryWait <= 0 {
		config.RetryWait = time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Represent calls POST /represent to locate faces and generate their embeddings.
// A frame with no face yields an empty result rather than an error.
func (c *Client) Represent(ctx context.Context, image []byte) (*RepresentResponse, error) {
	req := RepresentRequest{
		Img:              "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
		Model:            c.config.Model,
		Detector:         c.config.Detector,
		EnforceDetection: false,
	}

	var resp RepresentResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/represent", req, &resp); err != nil {
		return nil, err
	}

	// enforce_detection=false makes DeepFace embed the whole frame when it finds nothing
	results := resp.Results[:0]
	for _, r := range resp.Results {
		if r.FaceConfidence == 0 && r.FacialArea.W == 0 && r.FacialArea.H == 0 {
			continue
		}
		results = append(results, r)
	}
	resp.Results = results

	return &resp, nil
}

// maxBackoff caps the wait between two attempts
const maxBackoff = 30 * time.Second

// backoff doubles RetryWait after each attempt, up to RetryCount retries
func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryWait
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	retries := c.config.RetryCount
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// doRequestWithRetry retries server errors and transport failures. A 4xx
// answer or a cancelled context ends it at once.
func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	operation := func() error {
		err := c.doRequest(ctx, method, path, body, result)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case isClientError(err):
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, c.backoff(ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || isClientError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeepFaceUnavailable, err)
}

// doRequest executes a single HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	url := c.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	return nil
}
