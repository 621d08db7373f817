package server

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"piigate/config"
	"piigate/internal/auditlog"
	"piigate/internal/redact"

	_ "piigate/docs"
)

// DefaultBodySizeLimit caps admin request bodies when none is configured.
const DefaultBodySizeLimit int64 = 10 << 20

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey       string // Optional: Master key for authentication
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	// Gatherer backs the metrics endpoint. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// BodySizeLimit caps admin request bodies (default: 10MB). Redaction
	// streams are bounded per record by the parser instead.
	BodySizeLimit  int64
	SwaggerEnabled bool

	// Stream holds the defaults for POST /v1/redact.
	Stream config.StreamConfig

	Engine   *redact.Engine
	Rulesets RulesetManager
	// AuditReader is nil when auditing is disabled.
	AuditReader auditlog.Reader
	// Health is nil when no storage backend is configured.
	Health HealthChecker
}

// New creates a new HTTP server
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(cfg.Engine, cfg.Rulesets, cfg.AuditReader, cfg.Health, cfg.Stream)

	authSkipPaths := []string{"/health"}

	metricsPath := "/metrics"
	if cfg.MetricsEnabled {
		metricsPath = metricsRoute(cfg.MetricsEndpoint)
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	// Global middleware stack (order matters)
	e.Use(middleware.RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())

	bodySizeLimit := DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: strconv.FormatInt(bodySizeLimit, 10),
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == redactPath
		},
	}))

	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.SwaggerEnabled {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	// Redaction
	e.POST(redactPath, handler.Redact, StreamOptions(cfg.Stream))

	// Admin
	admin := e.Group("/admin")
	admin.POST("/reload", handler.Reload)
	admin.GET("/ruleset", handler.Ruleset)
	admin.GET("/audit", handler.ListAudit)
	admin.GET("/audit/:id", handler.GetAudit)
	admin.GET("/audit/streams/:stream_id", handler.GetAuditStream)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

const redactPath = "/v1/redact"

// metricsRoute cleans the configured metrics path. Paths that would shadow
// the API or admin routes fall back to /metrics.
func metricsRoute(endpoint string) string {
	if endpoint == "" {
		return "/metrics"
	}
	p := path.Clean("/" + endpoint)
	for _, reserved := range []string{"/v1", "/admin", "/swagger", "/health"} {
		if p == reserved || strings.HasPrefix(p, reserved+"/") {
			return "/metrics"
		}
	}
	if p == "/" {
		return "/metrics"
	}
	return p
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
