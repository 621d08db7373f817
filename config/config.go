// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Stream    StreamConfig    `yaml:"stream"`
	Ruleset   RulesetConfig   `yaml:"ruleset"`
	Storage   StorageConfig   `yaml:"storage"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// MasterKey protects every route except /health. Empty disables auth.
	MasterKey string `yaml:"master_key"`
	// BodySizeLimit caps request bodies, e.g. "10M". Empty means the default.
	BodySizeLimit  string `yaml:"body_size_limit"`
	SwaggerEnabled bool   `yaml:"swagger_enabled"`
}

// StreamConfig holds the defaults for streams opened by the HTTP surface
type StreamConfig struct {
	Format         string `yaml:"format"`
	CSVHeader      bool   `yaml:"csv_header"`
	IDColumn       string `yaml:"id_column"`
	DataColumn     string `yaml:"data_column"`
	MaxRecordBytes int    `yaml:"max_record_bytes"`
	MaxDepth       int    `yaml:"max_depth"`
	MaxValueBytes  int    `yaml:"max_value_bytes"`
}

// RulesetConfig tells where the detection ruleset comes from
type RulesetConfig struct {
	// Path to a YAML ruleset. Empty uses the built-in default.
	Path string `yaml:"path"`
	// WatchInterval is how often (seconds) the file and the shared cache are
	// polled for changes. 0 disables watching.
	WatchInterval int `yaml:"watch_interval"`
}

// StorageConfig holds the shared storage backend configuration
type StorageConfig struct {
	// Type is one of "sqlite", "postgresql", "mongodb"
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// AuditConfig holds the audit sink configuration
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// OnlyPII skips records without findings.
	OnlyPII       bool `yaml:"only_pii"`
	StoreRecords  bool `yaml:"store_records"`
	BufferSize    int  `yaml:"buffer_size"`
	FlushInterval int  `yaml:"flush_interval"`
	RetentionDays int  `yaml:"retention_days"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// TelemetryConfig controls sampled masked examples
type TelemetryConfig struct {
	// SampleRate is the fraction of records, 0 to 1, whose masked output is
	// attached to telemetry events.
	SampleRate float64 `yaml:"sample_rate"`
}

// CacheConfig holds the shared ruleset cache configuration
type CacheConfig struct {
	// Dir holds the local ruleset cache when Redis is not configured.
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
	TTL int    `yaml:"ttl"`
}

// LoggingConfig holds application log configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WatchDuration returns the ruleset watch interval as a duration.
func (c RulesetConfig) WatchDuration() time.Duration {
	return time.Duration(c.WatchInterval) * time.Second
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			SwaggerEnabled: true,
		},
		Stream: StreamConfig{
			Format:         "ndjson",
			CSVHeader:      true,
			IDColumn:       "record_id",
			DataColumn:     "data_json",
			MaxRecordBytes: 1 << 20,
			MaxDepth:       64,
			MaxValueBytes:  64 << 10,
		},
		Ruleset: RulesetConfig{
			WatchInterval: 10,
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/piigate.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "piigate"},
		},
		Audit: AuditConfig{
			Enabled:       false,
			OnlyPII:       false,
			StoreRecords:  true,
			BufferSize:    1000,
			FlushInterval: 5,
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		Telemetry: TelemetryConfig{
			SampleRate: 0,
		},
		Cache: CacheConfig{
			Dir: ".cache",
			Redis: RedisConfig{
				Key: "piigate:ruleset",
				TTL: 86400,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "",
		},
	}
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := ValidateBodySizeLimit(cfg.Server.BodySizeLimit); err != nil {
		return nil, fmt.Errorf("invalid body_size_limit: %w", err)
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return nil, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", cfg.Telemetry.SampleRate)
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(ExpandString(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandString replaces ${VAR} and ${VAR:-default} references. A reference
// without a default whose variable is unset or empty is left as is.
func ExpandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := envPattern.FindStringSubmatch(m)
		value := os.Getenv(parts[1])
		if value != "" {
			return value
		}
		if parts[2] != "" {
			return parts[3]
		}
		return m
	})
}

func applyEnvOverrides(cfg *Config) error {
	setString("PORT", &cfg.Server.Port)
	setString("PIIGATE_MASTER_KEY", &cfg.Server.MasterKey)
	setString("BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit)

	setString("STREAM_FORMAT", &cfg.Stream.Format)
	setString("STREAM_ID_COLUMN", &cfg.Stream.IDColumn)
	setString("STREAM_DATA_COLUMN", &cfg.Stream.DataColumn)

	setString("RULESET_PATH", &cfg.Ruleset.Path)

	setString("STORAGE_TYPE", &cfg.Storage.Type)
	setString("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	setString("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	setString("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	setString("MONGODB_DATABASE", &cfg.Storage.MongoDB.Database)

	setString("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)

	setString("CACHE_DIR", &cfg.Cache.Dir)
	setString("REDIS_URL", &cfg.Cache.Redis.URL)
	setString("REDIS_KEY", &cfg.Cache.Redis.Key)

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)

	bools := []struct {
		env string
		dst *bool
	}{
		{"SWAGGER_ENABLED", &cfg.Server.SwaggerEnabled},
		{"STREAM_CSV_HEADER", &cfg.Stream.CSVHeader},
		{"AUDIT_ENABLED", &cfg.Audit.Enabled},
		{"AUDIT_ONLY_PII", &cfg.Audit.OnlyPII},
		{"AUDIT_STORE_RECORDS", &cfg.Audit.StoreRecords},
		{"METRICS_ENABLED", &cfg.Metrics.Enabled},
	}
	for _, b := range bools {
		if err := setBool(b.env, b.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"STREAM_MAX_RECORD_BYTES", &cfg.Stream.MaxRecordBytes},
		{"STREAM_MAX_DEPTH", &cfg.Stream.MaxDepth},
		{"STREAM_MAX_VALUE_BYTES", &cfg.Stream.MaxValueBytes},
		{"RULESET_WATCH_INTERVAL", &cfg.Ruleset.WatchInterval},
		{"POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns},
		{"AUDIT_BUFFER_SIZE", &cfg.Audit.BufferSize},
		{"AUDIT_FLUSH_INTERVAL", &cfg.Audit.FlushInterval},
		{"AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays},
		{"REDIS_TTL", &cfg.Cache.Redis.TTL},
	}
	for _, i := range ints {
		if err := setInt(i.env, i.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("TELEMETRY_SAMPLE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEMETRY_SAMPLE_RATE %q: %w", v, err)
		}
		cfg.Telemetry.SampleRate = f
	}
	return nil
}

func setString(env string, dst *string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setBool(env string, dst *bool) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	*dst = b
	return nil
}

func setInt(env string, dst *int) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	*dst = n
	return nil
}

const (
	minBodySizeLimit = 1 << 10
	maxBodySizeLimit = 100 << 20
)

var bodySizePattern = regexp.MustCompile(`^(\d+)([KMG]B?)?$`)

// ParseBodySizeLimit converts "10M", "512KB" or a plain byte count to bytes.
// An empty string returns 0.
func ParseBodySizeLimit(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	m := bodySizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size %q (expected e.g. 1048576, 512K, 10MB)", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	switch strings.TrimSuffix(m[2], "B") {
	case "K":
		n <<= 10
	case "M":
		n <<= 20
	case "G":
		n <<= 30
	}
	return n, nil
}

// ValidateBodySizeLimit checks the format and the 1KB to 100MB bounds.
func ValidateBodySizeLimit(s string) error {
	n, err := ParseBodySizeLimit(s)
	if err != nil {
		return err
	}
	if n == 0 && strings.TrimSpace(s) == "" {
		return nil
	}
	if n < minBodySizeLimit || n > maxBodySizeLimit {
		return fmt.Errorf("size %q must be between 1KB and 100MB", s)
	}
	return nil
}
