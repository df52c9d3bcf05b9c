package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api/middleware"
	mockprovider "github.com/saturnino-fabrica-de-software/presenca/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/presenca/internal/recognizer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noisyPNG returns a PNG large enough for the mock backend to report a face.
// Different seeds give different encodings.
func noisyPNG(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	state := uint32(seed) + 1
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			state = state*1664525 + 1013904223
			img.Set(x, y, color.RGBA{R: uint8(state >> 24), G: uint8(state >> 16), B: uint8(state >> 8), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.GreaterOrEqual(t, buf.Len(), mockprovider.MinFaceBytes)
	return buf.Bytes()
}

func newTestRouter(t *testing.T, apiKey string, opts ...func(*Dependencies)) (*Router, []byte) {
	t.Helper()

	dir := t.TempDir()
	known := noisyPNG(t, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s001.png"), known, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s002.png"), noisyPNG(t, 2), 0o600))

	rec, err := recognizer.New(context.Background(), mockprovider.New(), dir, discardLogger())
	require.NoError(t, err)

	deps := &Dependencies{
		Recognizer:   rec,
		ServerAPIKey: apiKey,
		RateLimit:    middleware.RateLimiterConfig{Max: 100, Window: time.Minute},
	}
	for _, opt := range opts {
		opt(deps)
	}

	router := NewRouter(discardLogger(), deps)
	router.Setup()
	t.Cleanup(func() { _ = router.Shutdown() })

	return router, known
}

func recognizeRequest(t *testing.T, frame []byte) *multipartRequest {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "frame.png")
	require.NoError(t, err)
	_, _ = part.Write(frame)
	require.NoError(t, writer.Close())
	return &multipartRequest{body: body, contentType: writer.FormDataContentType()}
}

type multipartRequest struct {
	body        *bytes.Buffer
	contentType string
}

func TestRouter_HealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, "secret")

	resp, err := router.App().Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = router.App().Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var ready handler.ReadyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, 2, ready.Faces)
	assert.Equal(t, "disabled", ready.Database)
}

func TestRouter_RecognizeEndToEnd(t *testing.T) {
	router, known := newTestRouter(t, "secret")

	mp := recognizeRequest(t, known)
	req := httptest.NewRequest("POST", "/recognize", mp.body)
	req.Header.Set("Content-Type", mp.contentType)
	req.Header.Set("X-API-Key", "secret")

	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var result handler.RecognizeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Recognized, 1)
	assert.Equal(t, "s001", result.Recognized[0].StudentID)
	assert.InDelta(t, 1.0, result.Recognized[0].Confidence, 1e-9)
	require.NotNil(t, result.Recognized[0].Position)
	assert.Equal(t, mockprovider.FaceBox.String(), *result.Recognized[0].Position)
}

func TestRouter_UnknownFace(t *testing.T) {
	router, _ := newTestRouter(t, "")

	mp := recognizeRequest(t, noisyPNG(t, 99))
	req := httptest.NewRequest("POST", "/recognize", mp.body)
	req.Header.Set("Content-Type", mp.contentType)

	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"recognized":[]}`, string(raw))
}

func TestRouter_RequiresAPIKey(t *testing.T) {
	router, _ := newTestRouter(t, "secret")

	for _, path := range []string{"/roster", "/ws/attendance"} {
		resp, err := router.App().Test(httptest.NewRequest("GET", path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode, path)
	}

	req := httptest.NewRequest("GET", "/roster", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRouter_WebsocketRequiresUpgrade(t *testing.T) {
	router, _ := newTestRouter(t, "")

	resp, err := router.App().Test(httptest.NewRequest("GET", "/ws/attendance", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestRouter_ReloadPicksUpNewPhotos(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s001.png"), noisyPNG(t, 1), 0o600))

	rec, err := recognizer.New(context.Background(), mockprovider.New(), dir, discardLogger())
	require.NoError(t, err)

	followers := 0
	router := NewRouter(discardLogger(), &Dependencies{
		Recognizer:     rec,
		OnRosterReload: func() { followers++ },
	})
	router.Setup()
	t.Cleanup(func() { _ = router.Shutdown() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "s003.png"), noisyPNG(t, 3), 0o600))

	resp, err := router.App().Test(httptest.NewRequest("POST", "/roster/reload", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var reload handler.ReloadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reload))
	assert.Equal(t, 2, reload.Faces)
	assert.Equal(t, 1, followers)

	resp, err = router.App().Test(httptest.NewRequest("GET", "/roster", nil), -1)
	require.NoError(t, err)
	var rosterResp handler.RosterResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rosterResp))
	assert.Equal(t, []string{"s001", "s003"}, rosterResp.Identities)
}

func TestRouter_WithoutRecognizerServesOnlyHealthEndpoints(t *testing.T) {
	router := NewRouter(discardLogger(), nil)
	router.Setup()
	t.Cleanup(func() { _ = router.Shutdown() })

	resp, err := router.App().Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = router.App().Test(httptest.NewRequest("GET", "/nonexistent", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Nil(t, router.Hub())
}

func rateLimit(max int) func(*Dependencies) {
	return func(d *Dependencies) {
		d.RateLimit = middleware.RateLimiterConfig{Max: max, Window: time.Minute}
	}
}

func TestRouter_RateLimit(t *testing.T) {
	router, _ := newTestRouter(t, "secret", rateLimit(2))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/roster", nil)
		req.Header.Set("X-API-Key", "secret")
		resp, err := router.App().Test(req, -1)
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, []int{200, 200, 429}, statuses)
}

func TestRouter_ZeroRateLimitIsUnlimited(t *testing.T) {
	router, _ := newTestRouter(t, "secret", rateLimit(0))

	for i := 0; i < 700; i++ {
		req := httptest.NewRequest("GET", "/roster", nil)
		req.Header.Set("X-API-Key", "secret")
		resp, err := router.App().Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode, "request %d", i+1)
		require.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	}
}
