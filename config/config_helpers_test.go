package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestExpandString tests the ExpandString function with various scenarios
func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "string without placeholders",
			input:    "simple-string",
			envVars:  map[string]string{},
			expected: "simple-string",
		},
		{
			name:     "simple variable expansion",
			input:    "${HASH_SECRET}",
			envVars:  map[string]string{"HASH_SECRET": "secret-12345"},
			expected: "secret-12345",
		},
		{
			name:     "variable in middle of string",
			input:    "prefix-${HASH_SECRET}-suffix",
			envVars:  map[string]string{"HASH_SECRET": "secret-12345"},
			expected: "prefix-secret-12345-suffix",
		},
		{
			name:     "multiple variables",
			input:    "${SCHEME}://${HOST}:${PORT}",
			envVars:  map[string]string{"SCHEME": "https", "HOST": "audit.example.com", "PORT": "8080"},
			expected: "https://audit.example.com:8080",
		},
		{
			name:     "variable with default value - env var exists",
			input:    "${HASH_SECRET:-default-key}",
			envVars:  map[string]string{"HASH_SECRET": "real-key"},
			expected: "real-key",
		},
		{
			name:     "variable with default value - env var missing",
			input:    "${HASH_SECRET:-default-key}",
			envVars:  map[string]string{},
			expected: "default-key",
		},
		{
			name:     "variable with default value - env var empty",
			input:    "${HASH_SECRET:-default-key}",
			envVars:  map[string]string{"HASH_SECRET": ""},
			expected: "default-key",
		},
		{
			name:     "unresolved variable - no default",
			input:    "${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "${MISSING_VAR}",
		},
		{
			name:     "partially resolved string",
			input:    "${RESOLVED}-${UNRESOLVED}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1-${UNRESOLVED}",
		},
		{
			name:     "mixed resolved and unresolved with defaults",
			input:    "${RESOLVED}:${UNRESOLVED:-fallback}:${MISSING}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1:fallback:${MISSING}",
		},
		{
			name:     "default value with special characters",
			input:    "${ENDPOINT:-https://audit.example.com/v1}",
			envVars:  map[string]string{},
			expected: "https://audit.example.com/v1",
		},
		{
			name:     "default value with colon in it",
			input:    "${URL:-http://localhost:8080}",
			envVars:  map[string]string{},
			expected: "http://localhost:8080",
		},
		{
			name:     "complex real-world example",
			input:    "${POSTGRES_HOST:-localhost}:5432/piigate",
			envVars:  map[string]string{},
			expected: "localhost:5432/piigate",
		},
		{
			name:     "environment variable set to empty string (no default)",
			input:    "${EMPTY_VAR}",
			envVars:  map[string]string{"EMPTY_VAR": ""},
			expected: "${EMPTY_VAR}",
		},
		{
			name:     "empty default value - env var missing",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "empty default value - env var set",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{"OPTIONAL_VAR": "actual-value"},
			expected: "actual-value",
		},
		{
			name:     "empty default value - env var empty",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{"OPTIONAL_VAR": ""},
			expected: "",
		},
		{
			name:     "master key pattern - not set should be empty",
			input:    "${PIIGATE_MASTER_KEY:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "master key pattern - set to value",
			input:    "${PIIGATE_MASTER_KEY:-}",
			envVars:  map[string]string{"PIIGATE_MASTER_KEY": "secret-key"},
			expected: "secret-key",
		},
		{
			name:     "multiple placeholders some resolved some not",
			input:    "prefix-${VAR1}-${VAR2}-${VAR3}-suffix",
			envVars:  map[string]string{"VAR1": "a", "VAR3": "c"},
			expected: "prefix-a-${VAR2}-c-suffix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				_ = os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.envVars {
					_ = os.Unsetenv(k)
				}
			}()

			result := ExpandString(tt.input)
			if result != tt.expected {
				t.Errorf("ExpandString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestApplyEnvOverrides tests the applyEnvOverrides function
func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "3000" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "3000")
				}
			},
		},
		{
			name:    "PIIGATE_MASTER_KEY override",
			envVars: map[string]string{"PIIGATE_MASTER_KEY": "my-secret"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.MasterKey != "my-secret" {
					t.Errorf("Server.MasterKey = %q, want %q", cfg.Server.MasterKey, "my-secret")
				}
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Storage.Type != "postgresql" {
					t.Errorf("Storage.Type = %q, want %q", cfg.Storage.Type, "postgresql")
				}
				if cfg.Storage.PostgreSQL.URL != "postgres://localhost/test" {
					t.Errorf("Storage.PostgreSQL.URL = %q, want %q", cfg.Storage.PostgreSQL.URL, "postgres://localhost/test")
				}
				if cfg.Storage.PostgreSQL.MaxConns != 20 {
					t.Errorf("Storage.PostgreSQL.MaxConns = %d, want %d", cfg.Storage.PostgreSQL.MaxConns, 20)
				}
			},
		},
		{
			name:    "bool overrides",
			envVars: map[string]string{"METRICS_ENABLED": "false", "AUDIT_ENABLED": "1", "STREAM_CSV_HEADER": "FALSE"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Metrics.Enabled {
					t.Error("Metrics.Enabled should be false")
				}
				if !cfg.Audit.Enabled {
					t.Error("Audit.Enabled should be true")
				}
				if cfg.Stream.CSVHeader {
					t.Error("Stream.CSVHeader should be false")
				}
			},
		},
		{
			name:    "stream overrides",
			envVars: map[string]string{"STREAM_FORMAT": "csv", "STREAM_MAX_RECORD_BYTES": "4096", "STREAM_DATA_COLUMN": "payload"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Stream.Format != "csv" {
					t.Errorf("Stream.Format = %q, want csv", cfg.Stream.Format)
				}
				if cfg.Stream.MaxRecordBytes != 4096 {
					t.Errorf("Stream.MaxRecordBytes = %d, want 4096", cfg.Stream.MaxRecordBytes)
				}
				if cfg.Stream.DataColumn != "payload" {
					t.Errorf("Stream.DataColumn = %q, want payload", cfg.Stream.DataColumn)
				}
			},
		},
		{
			name:    "ruleset and telemetry overrides",
			envVars: map[string]string{"RULESET_PATH": "/etc/piigate/rules.yaml", "RULESET_WATCH_INTERVAL": "0", "TELEMETRY_SAMPLE_RATE": "0.25"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Ruleset.Path != "/etc/piigate/rules.yaml" {
					t.Errorf("Ruleset.Path = %q", cfg.Ruleset.Path)
				}
				if cfg.Ruleset.WatchInterval != 0 {
					t.Errorf("Ruleset.WatchInterval = %d, want 0", cfg.Ruleset.WatchInterval)
				}
				if cfg.Telemetry.SampleRate != 0.25 {
					t.Errorf("Telemetry.SampleRate = %v, want 0.25", cfg.Telemetry.SampleRate)
				}
			},
		},
		{
			name:    "cache overrides",
			envVars: map[string]string{"REDIS_URL": "redis://cache:6379/1", "REDIS_TTL": "60", "CACHE_DIR": "/var/cache/piigate"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Cache.Redis.URL != "redis://cache:6379/1" {
					t.Errorf("Cache.Redis.URL = %q", cfg.Cache.Redis.URL)
				}
				if cfg.Cache.Redis.TTL != 60 {
					t.Errorf("Cache.Redis.TTL = %d, want 60", cfg.Cache.Redis.TTL)
				}
				if cfg.Cache.Dir != "/var/cache/piigate" {
					t.Errorf("Cache.Dir = %q", cfg.Cache.Dir)
				}
			},
		},
		{
			name:    "no env vars set preserves defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "8080" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
				}
				if cfg.Audit.RetentionDays != 30 {
					t.Errorf("Audit.RetentionDays = %d, want 30", cfg.Audit.RetentionDays)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := buildDefaultConfig()
			require.NoError(t, applyEnvOverrides(cfg))
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	for env, value := range map[string]string{
		"METRICS_ENABLED":       "maybe",
		"AUDIT_BUFFER_SIZE":     "lots",
		"TELEMETRY_SAMPLE_RATE": "half",
	} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			err := applyEnvOverrides(buildDefaultConfig())
			require.Error(t, err)
			require.Contains(t, err.Error(), env)
		})
	}
}
