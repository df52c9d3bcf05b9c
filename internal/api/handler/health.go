package handler

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/presenca/internal/database"
	"github.com/saturnino-fabrica-de-software/presenca/internal/roster"
)

const Version = "0.1.0"

// RosterInfo reports the loaded roster for readiness checks
type RosterInfo interface {
	Roster() *roster.Store
	Mock() bool
}

type HealthHandler struct {
	recognizer RosterInfo
	db         database.Pinger
	logger     *slog.Logger
	now        func() time.Time
}

// NewHealthHandler builds the health endpoints. db may be nil when Postgres is not configured.
func NewHealthHandler(recognizer RosterInfo, db database.Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		recognizer: recognizer,
		db:         db,
		logger:     logger.With("component", "health_handler"),
		now:        time.Now,
	}
}

type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
	Version   string  `json:"version,omitempty"`
}

type ReadyResponse struct {
	Status   string `json:"status"`
	Faces    int    `json:"faces"`
	Mock     bool   `json:"mock"`
	Database string `json:"database"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	now := h.now()
	return c.JSON(HealthResponse{
		Status:    "ok",
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Version:   Version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	resp := ReadyResponse{
		Status:   "ready",
		Database: "disabled",
	}

	if h.recognizer != nil {
		resp.Faces = h.recognizer.Roster().Len()
		resp.Mock = h.recognizer.Mock()
	}

	if h.db != nil {
		if err := database.HealthCheck(c.UserContext(), h.db); err != nil {
			h.logger.Warn("health.database_unavailable", slog.Any("error", err))
			resp.Status = "unavailable"
			resp.Database = "unavailable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		resp.Database = "ok"
	}

	return c.JSON(resp)
}
