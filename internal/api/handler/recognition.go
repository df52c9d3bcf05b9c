package handler

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/presenca/internal/attendance"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/roster"
	"github.com/saturnino-fabrica-de-software/presenca/internal/ws"
)

const maxImageSize = 10 * 1024 * 1024 // 10MB

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Recognizer is the part of recognizer.Recognizer the HTTP surface uses
type Recognizer interface {
	Identify(ctx context.Context, frame []byte) ([]domain.DetectionResult, error)
	Reload(ctx context.Context) (int, error)
	Roster() *roster.Store
	Mock() bool
}

// Broadcaster publishes live-feed events
type Broadcaster interface {
	Broadcast(sessionID string, eventType ws.EventType, data interface{})
}

// RecognitionHandler exposes the recognizer over HTTP. The recognizer is not
// safe for concurrent use, so Identify and Reload run under one mutex.
type RecognitionHandler struct {
	recognizer Recognizer
	hub        Broadcaster
	logger     *slog.Logger
	onReload   func()
	mu         sync.Mutex
}

// RecognitionOption configures a RecognitionHandler
type RecognitionOption func(*RecognitionHandler)

// WithReloadHook runs fn after every successful roster reload, so other
// recognizers fed from the same directory can follow
func WithReloadHook(fn func()) RecognitionOption {
	return func(h *RecognitionHandler) {
		h.onReload = fn
	}
}

func NewRecognitionHandler(recognizer Recognizer, hub Broadcaster, logger *slog.Logger, opts ...RecognitionOption) *RecognitionHandler {
	h := &RecognitionHandler{
		recognizer: recognizer,
		hub:        hub,
		logger:     logger.With("component", "recognition_handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type RecognizeResponse struct {
	Recognized []attendance.Recognized `json:"recognized"`
}

type ReloadResponse struct {
	Faces int `json:"faces"`
}

type RosterResponse struct {
	Faces      int      `json:"faces"`
	Identities []string `json:"identities"`
	Mock       bool     `json:"mock"`
}

// Recognize handles POST /recognize
func (h *RecognitionHandler) Recognize(c *fiber.Ctx) error {
	frame, err := extractAndValidateImage(c)
	if err != nil {
		return err
	}

	start := time.Now()

	h.mu.Lock()
	results, err := h.recognizer.Identify(c.UserContext(), frame)
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("recognizer.identify_failed", slog.Any("error", err))
		return domain.ErrBackendUnavailable.WithError(err)
	}

	h.logger.Debug("recognizer.http_identified",
		slog.Int("matches", len(results)),
		slog.Duration("latency", time.Since(start)),
	)

	return c.JSON(RecognizeResponse{Recognized: attendance.FromResults(results)})
}

// Reload handles POST /roster/reload
func (h *RecognitionHandler) Reload(c *fiber.Ctx) error {
	h.mu.Lock()
	faces, err := h.recognizer.Reload(c.UserContext())
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("recognizer.reload_failed", slog.Any("error", err))
		return domain.ErrRosterReloadFailed.WithError(err)
	}

	h.logger.Info("recognizer.reloaded", slog.Int("faces", faces))

	if h.onReload != nil {
		h.onReload()
	}

	if h.hub != nil {
		h.hub.Broadcast("", ws.EventRosterReloaded, ReloadResponse{Faces: faces})
	}

	return c.JSON(ReloadResponse{Faces: faces})
}

// Roster handles GET /roster
func (h *RecognitionHandler) Roster(c *fiber.Ctx) error {
	store := h.recognizer.Roster()

	return c.JSON(RosterResponse{
		Faces:      store.Len(),
		Identities: store.Identities(),
		Mock:       h.recognizer.Mock(),
	})
}

// extractAndValidateImage reads the "image" form file and checks it decodes as a supported format
func extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrImageMissing
	}

	if file.Size > maxImageSize {
		return nil, domain.ErrInvalidImage.WithError(fiber.ErrRequestEntityTooLarge)
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/octet-stream" && !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	if len(data) == 0 || len(data) > maxImageSize {
		return nil, domain.ErrInvalidImage
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return data, nil
}
