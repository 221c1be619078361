package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ghproxy/internal/auditlog"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey       string // Optional: master key for proxy authentication
	MetricsEnabled  bool   // Whether to expose the Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for the metrics endpoint (default: /metrics)
	AuditWriter     *auditlog.Writer
}

// New creates a new HTTP server over the core boundaries.
func New(upstream Upstream, reader LineReader, publisher Publisher, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true

	handler := NewHandler(upstream, reader, publisher)

	// Paths that skip authentication
	authSkipPaths := []string{"/health"}

	metricsPath := "/metrics"
	if cfg != nil && cfg.MetricsEnabled {
		if cfg.MetricsEndpoint != "" {
			// Normalize path to prevent traversal attacks
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	// Global middleware stack (order matters)
	e.Use(middleware.Recover())
	e.Use(RequestIDMiddleware())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	if cfg != nil && cfg.AuditWriter != nil {
		e.Use(AuditMiddleware(cfg.AuditWriter))
	}
	if cfg != nil && cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg != nil && cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	// Repository routes
	e.GET("/repo/:owner/:repo", handler.GetRepo)
	e.GET("/repo/:owner/:repo/contents", handler.ListContents)
	e.GET("/repo/:owner/:repo/file/*", handler.GetFile)
	e.GET("/repo/:owner/:repo/lines/*", handler.GetFileLines)
	e.GET("/repo/:owner/:repo/commits", handler.GetCommits)
	e.GET("/repo/:owner/:repo/pulls", handler.ListPulls)
	e.GET("/repo/:owner/:repo/issues", handler.ListIssues)
	e.GET("/repo/:owner/:repo/branches", handler.ListBranches)
	e.GET("/repo/:owner/:repo/traffic/views", handler.TrafficViews)
	e.GET("/repo/:owner/:repo/traffic/clones", handler.TrafficClones)

	// Audit log publish trigger. POST: publishing is a side effect.
	e.POST("/logs/push", handler.PushLogs)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
