package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir runs the test from an empty directory so no stray config.yaml or
// .env is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_DefaultPort(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "ndjson", cfg.Stream.Format)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Audit.Enabled)
}

func TestLoad_PortFromEnv(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	dir := chdir(t)
	content := `
server:
  port: "${TEST_PORT_DEFAULTS:-9999}"
stream:
  format: csv
  data_column: payload
ruleset:
  path: "${TEST_RULESET:-rules.yaml}"
audit:
  enabled: true
  retention_days: 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	t.Run("UseDefaultValue", func(t *testing.T) {
		t.Setenv("TEST_PORT_DEFAULTS", "")
		t.Setenv("PORT", "")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9999", cfg.Server.Port)
		assert.Equal(t, "csv", cfg.Stream.Format)
		assert.Equal(t, "payload", cfg.Stream.DataColumn)
		assert.Equal(t, "record_id", cfg.Stream.IDColumn)
		assert.Equal(t, "rules.yaml", cfg.Ruleset.Path)
		assert.True(t, cfg.Audit.Enabled)
		assert.Equal(t, 7, cfg.Audit.RetentionDays)
	})

	t.Run("OverrideDefaultValue", func(t *testing.T) {
		t.Setenv("TEST_PORT_DEFAULTS", "1111")
		t.Setenv("PORT", "")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "1111", cfg.Server.Port)
	})

	t.Run("EnvBeatsYAML", func(t *testing.T) {
		t.Setenv("PORT", "2222")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "2222", cfg.Server.Port)
	})
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PIIGATE_TEST_DOTENV_KEY=from-dotenv\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("PIIGATE_TEST_DOTENV_KEY") })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("server:\n  master_key: \"${PIIGATE_TEST_DOTENV_KEY}\"\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Server.MasterKey)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_RejectsBadSampleRate(t *testing.T) {
	chdir(t)
	t.Setenv("TELEMETRY_SAMPLE_RATE", "1.5")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsBadBodySizeLimit(t *testing.T) {
	chdir(t)
	t.Setenv("BODY_SIZE_LIMIT", "1G")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body_size_limit")
}

func TestValidateBodySizeLimit(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		// Valid formats
		{"empty string is valid", "", false},
		{"plain number", "1048576", false},
		{"kilobytes lowercase", "100k", false},
		{"kilobytes uppercase", "100K", false},
		{"kilobytes with B suffix", "100KB", false},
		{"megabytes lowercase", "10m", false},
		{"megabytes uppercase", "10M", false},
		{"megabytes with B suffix", "10MB", false},
		{"whitespace trimmed", "  10M  ", false},

		// Boundary values
		{"minimum valid (1KB)", "1K", false},
		{"maximum valid (100MB)", "100M", false},

		// Invalid formats
		{"invalid format with letters", "abc", true},
		{"invalid unit", "10X", true},
		{"negative number", "-10M", true},
		{"decimal number", "10.5M", true},
		{"empty unit with B", "10B", true},

		// Boundary violations
		{"below minimum (100 bytes)", "100", true},
		{"above maximum (200MB)", "200M", true},
		{"above maximum (1GB)", "1G", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBodySizeLimit(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for input %q, got nil", tt.input)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error for input %q: %v", tt.input, err)
				}
			}
		})
	}
}

func TestParseBodySizeLimit(t *testing.T) {
	n, err := ParseBodySizeLimit("10MB")
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), n)

	n, err = ParseBodySizeLimit("")
	require.NoError(t, err)
	assert.Zero(t, n)
}
