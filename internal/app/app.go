// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the piigate server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"piigate/config"
	"piigate/internal/auditlog"
	"piigate/internal/cache"
	"piigate/internal/redact"
	"piigate/internal/ruleset"
	"piigate/internal/rulesync"
	"piigate/internal/server"
	"piigate/internal/telemetry"
)

// localCacheFile is the ruleset cache file inside config.CacheConfig.Dir.
const localCacheFile = "ruleset.msgpack"

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config    *config.Config
	cache     cache.Cache
	rulesets  *rulesync.Manager
	stopWatch func()
	registry  *prometheus.Registry
	engine    *redact.Engine
	audit     *auditlog.Result
	server    *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}

	bodySizeLimit, err := config.ParseBodySizeLimit(cfg.Server.BodySizeLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid body_size_limit: %w", err)
	}

	app := &App{config: cfg}

	app.cache, err = initCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ruleset cache: %w", err)
	}

	app.rulesets = rulesync.New(nil, cfg.Ruleset.Path, app.cache)
	snap, err := app.rulesets.Load(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to load ruleset: %w", err), app.cache.Close())
	}

	auditResult, err := auditlog.New(ctx, cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize audit logging: %w", err), app.cache.Close())
	}
	app.audit = auditResult

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := telemetry.Multi{telemetry.Signals{}}
	if cfg.Metrics.Enabled {
		sink = append(sink, telemetry.NewPrometheus(app.registry))
		if err := auditlog.RegisterMetrics(app.registry, auditResult.Logger); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to register audit metrics: %w", err), auditResult.Close(), app.cache.Close())
		}
	}

	app.engine = redact.NewEngine(ruleset.NewHolder(snap),
		redact.WithTelemetry(sink),
		redact.WithSampler(telemetry.NewSampler(cfg.Telemetry.SampleRate)),
		redact.WithAudit(auditResult.Logger),
	)
	app.rulesets.Attach(app.engine)

	app.logStartupInfo(snap)

	serverCfg := &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		Gatherer:        app.registry,
		BodySizeLimit:   bodySizeLimit,
		SwaggerEnabled:  cfg.Server.SwaggerEnabled,
		Stream:          cfg.Stream,
		Engine:          app.engine,
		Rulesets:        app.rulesets,
		AuditReader:     auditResult.Reader,
	}
	if auditResult.Storage != nil {
		serverCfg.Health = auditResult.Storage
	}
	app.server = server.New(serverCfg)

	app.stopWatch = app.rulesets.Start(cfg.Ruleset.WatchDuration())

	return app, nil
}

// initCache picks Redis when a URL is configured and the local file cache
// otherwise.
func initCache(cfg config.CacheConfig) (cache.Cache, error) {
	if cfg.Redis.URL != "" {
		c, err := cache.NewRedisCache(cache.RedisConfig{
			URL: cfg.Redis.URL,
			Key: cfg.Redis.Key,
			TTL: time.Duration(cfg.Redis.TTL) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("ruleset cache", "type", "redis", "key", cfg.Redis.Key)
		return c, nil
	}
	path := ""
	if cfg.Dir != "" {
		path = filepath.Join(cfg.Dir, localCacheFile)
	}
	slog.Info("ruleset cache", "type", "local", "path", path)
	return cache.NewLocalCache(path), nil
}

// Engine returns the redaction engine.
func (a *App) Engine() *redact.Engine {
	return a.engine
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown, honoring the passed context timeout/cancellation.
// 2. Ruleset watcher stop.
// 3. Audit logger close (flushes pending entries).
// 4. Ruleset cache close.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every step and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// 1. Stop accepting requests; in-flight streams finish
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. No reloads past this point
	if a.stopWatch != nil {
		a.stopWatch()
	}

	// 3. Flush audit entries
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			slog.Error("audit logger close error", "error", err)
			errs = append(errs, fmt.Errorf("audit close: %w", err))
		}
	}

	// 4. Release the cache connection
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Error("ruleset cache close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(snap *ruleset.Snapshot) {
	cfg := a.config

	// Security warnings
	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: PIIGATE_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access to redaction, audit and reload endpoints",
			"recommendation", "set PIIGATE_MASTER_KEY environment variable")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}
	if snap.DevelopmentSalt() {
		slog.Warn("SECURITY WARNING: HASH strategies use the development secret",
			"security_risk", "hash tokens can be recomputed by anyone",
			"recommendation", "set PIIGATE_HASH_SECRET environment variable")
	}

	slog.Info("ruleset loaded",
		"name", snap.Name(),
		"version", snap.Version(),
		"path", a.rulesets.Path(),
		"watch_interval", cfg.Ruleset.WatchDuration(),
	)

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if cfg.Audit.Enabled {
		slog.Info("audit logging enabled",
			"storage", cfg.Storage.Type,
			"only_pii", cfg.Audit.OnlyPII,
			"store_records", cfg.Audit.StoreRecords,
			"retention_days", cfg.Audit.RetentionDays,
		)
	} else {
		slog.Info("audit logging disabled")
	}

	if cfg.Server.SwaggerEnabled {
		slog.Info("swagger UI enabled", "path", "/swagger/index.html")
	}
}
