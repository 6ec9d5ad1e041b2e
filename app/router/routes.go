// Package router provides HTTP routing, middleware configuration, and server setup for the ops surface
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/amirphl/wb-tariffs-sync/app/dto"
	"github.com/amirphl/wb-tariffs-sync/app/handlers"
	"github.com/amirphl/wb-tariffs-sync/app/middleware"
	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(ctx context.Context) error
	GetApp() *fiber.App
}

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string // empty disables /metrics
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	syncHandler    handlers.TariffSyncHandlerInterface
	authMiddleware *middleware.AuthMiddleware
	opts           Options
	logger         zerolog.Logger
}

// NewFiberRouter creates the ops router. A nil authMiddleware leaves the refresh endpoint unregistered.
func NewFiberRouter(syncHandler handlers.TariffSyncHandlerInterface, authMiddleware *middleware.AuthMiddleware, opts Options, log zerolog.Logger) Router {
	r := &FiberRouter{
		syncHandler:    syncHandler,
		authMiddleware: authMiddleware,
		opts:           opts,
		logger:         log.With().Str("component", "http").Logger(),
	}

	r.app = fiber.New(fiber.Config{
		AppName:      "WB Tariffs Sync",
		ServerHeader: "WB-Tariffs-Sync",
		ErrorHandler: r.errorHandler,
		BodyLimit:    64 * 1024,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.opts.MetricsPath != "" {
		r.app.Get(r.opts.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.syncHandler.Health)
	api.Get("/status", r.syncHandler.Status)

	if r.authMiddleware != nil {
		api.Post("/tariffs/refresh", r.authMiddleware.AdminAuthenticate(), r.syncHandler.Refresh)
	}

	r.app.Use(r.notFoundHandler)

	r.logger.Debug().Bool("refresh_enabled", r.authMiddleware != nil).Msg("Routes configured")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error().
				Interface("panic", e).
				Str("request_id", requestid.FromContext(c)).
				Str("path", c.Path()).
				Msg("Recovered from panic in HTTP handler")
		},
	}))

	r.app.Use(middleware.Metrics())

	r.app.Use(logger.New(logger.Config{
		Format:     "${status} ${method} ${path} ${latency} ip=${ip} request_id=${respHeader:X-Request-ID}\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Stream:     accessLogWriter{logger: r.logger},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health" || c.Path() == r.opts.MetricsPath
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Info().Str("address", address).Msg("Starting HTTP server")
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

func (r *FiberRouter) Shutdown(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errorCode = "REQUEST_ERROR"
		}
	}

	requestID := requestid.FromContext(c)
	r.logger.Error().Err(err).Int("status", code).Str("request_id", requestID).Msg("HTTP request failed")

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// accessLogWriter forwards fiber's access lines into the zerolog output
type accessLogWriter struct {
	logger zerolog.Logger
}

func (w accessLogWriter) Write(p []byte) (int, error) {
	w.logger.Info().Str("access", string(trimNewline(p))).Msg("HTTP request")
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	for len(p) > 0 && (p[len(p)-1] == '\n' || p[len(p)-1] == '\r') {
		p = p[:len(p)-1]
	}
	return p
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
