package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/presenca/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/presenca/internal/database"
	"github.com/saturnino-fabrica-de-software/presenca/internal/ws"
)

type Dependencies struct {
	Recognizer handler.Recognizer
	// DB is optional; when set /ready pings it
	DB database.Pinger
	// Hub is optional; the router starts its own when nil
	Hub *ws.Hub
	// ServerAPIKey protects every route but health checks and docs. Empty disables auth.
	ServerAPIKey string
	RateLimit    middleware.RateLimiterConfig
	// OnRosterReload runs after POST /roster/reload succeeds
	OnRosterReload func()
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
	wsHub       *ws.Hub
	cancelHub   context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Presenca API",
		BodyLimit:    12 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var recognizer handler.Recognizer
	var db database.Pinger
	if r.deps != nil {
		recognizer = r.deps.Recognizer
		db = r.deps.DB
	}

	// Health check endpoints (no auth required)
	var rosterInfo handler.RosterInfo
	if recognizer != nil {
		rosterInfo = recognizer
	}
	healthHandler := handler.NewHealthHandler(rosterInfo, db, r.logger)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if recognizer == nil {
		return
	}

	r.wsHub = r.deps.Hub
	if r.wsHub == nil {
		r.wsHub = ws.NewHub()
		hubCtx, hubCancel := context.WithCancel(context.Background())
		r.cancelHub = hubCancel
		go r.wsHub.Run(hubCtx)
	}

	protected := r.app.Group("/")
	protected.Use(middleware.Auth(r.deps.ServerAPIKey))

	// Rate limiting after auth so authenticated clients get their own bucket.
	// A zero Max leaves the protected routes unlimited.
	if r.deps.RateLimit.Max > 0 {
		r.rateLimiter = middleware.NewRateLimiter(r.deps.RateLimit)
		protected.Use(r.rateLimiter.Handler())
	}

	recognitionHandler := handler.NewRecognitionHandler(recognizer, r.wsHub, r.logger,
		handler.WithReloadHook(r.deps.OnRosterReload))
	protected.Post("/recognize", recognitionHandler.Recognize)
	protected.Get("/roster", recognitionHandler.Roster)
	protected.Post("/roster/reload", recognitionHandler.Reload)

	protected.Get("/ws/attendance", ws.UpgradeMiddleware(), ws.Handler(r.wsHub))
}

func (r *Router) App() *fiber.App {
	return r.app
}

// Hub returns the live-feed hub, nil before Setup or without a recognizer
func (r *Router) Hub() *ws.Hub {
	return r.wsHub
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.cancelHub != nil {
		r.cancelHub()
	}

	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
