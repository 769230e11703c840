// Package api exposes the management HTTP surface: health probes,
// Prometheus metrics, and the endpoints bridgectl drives.
package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akd-tools/sdd-bridge/internal/health"
	"github.com/akd-tools/sdd-bridge/internal/metrics"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr  string
	APIKey      string
	CORSOrigins string
}

// Server is the management API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	config   ServerConfig
	logger   zerolog.Logger
}

// NewServer creates and configures the management API server.
func NewServer(cfg ServerConfig, h *Handlers, checker *health.Checker, m *metrics.Metrics, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:      app,
		handlers: h,
		config:   cfg,
		logger:   logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes(checker, m)
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if s.config.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: s.config.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, DELETE, OPTIONS",
		}))
	}

	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}
		if s.config.APIKey != "" && c.Get("X-API-Key") != s.config.APIKey {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid API key")
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("request_id", c.Locals("request_id").(string)).
			Msg("api request")
		return c.Next()
	})
}

func (s *Server) setupRoutes(checker *health.Checker, m *metrics.Metrics) {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/readyz", func(c *fiber.Ctx) error {
		if checker != nil && !checker.IsReady(c.Context()) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready"})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})
	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	v1 := s.app.Group("/api/v1")
	v1.Get("/sessions", s.handlers.ListSessions)
	v1.Post("/sessions/kill", s.handlers.KillSession)
	v1.Get("/projects", s.handlers.ListProjects)
	v1.Post("/projects", s.handlers.StartProject)
	v1.Post("/advance", s.handlers.Advance)
	v1.Post("/messages", s.handlers.SendMessage)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}
	s.logger.Info().Str("addr", addr).Msg("management API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "an internal error occurred"
		}
		return c.Status(code).JSON(fiber.Map{"error": detail})
	}
}
