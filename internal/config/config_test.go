package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvString(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue string
		expected     string
	}{
		{
			name:         "env not set, return default",
			envValue:     "",
			defaultValue: "default",
			expected:     "default",
		},
		{
			name:         "env set, return env value",
			envValue:     "custom",
			defaultValue: "default",
			expected:     "custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_STRING_VALUE"
			os.Unsetenv(key)
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			}

			assert.Equal(t, tt.expected, getEnvString(key, tt.defaultValue))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		expected     int
	}{
		{
			name:         "env not set, return default",
			defaultValue: 5,
			expected:     5,
		},
		{
			name:         "env set to valid int, return int value",
			envValue:     "8",
			defaultValue: 5,
			expected:     8,
		},
		{
			name:         "env set to invalid int, return default",
			envValue:     "five",
			defaultValue: 5,
			expected:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_INT_VALUE"
			os.Unsetenv(key)
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			}

			assert.Equal(t, tt.expected, getEnvInt(key, tt.defaultValue))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{
			name:         "env not set, return default",
			defaultValue: true,
			expected:     true,
		},
		{
			name:         "env set to false, return false",
			envValue:     "false",
			defaultValue: true,
			expected:     false,
		},
		{
			name:         "env set to invalid bool, return default",
			envValue:     "not_a_bool",
			defaultValue: true,
			expected:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VALUE"
			os.Unsetenv(key)
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			}

			assert.Equal(t, tt.expected, getEnvBool(key, tt.defaultValue))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{
			name:         "env not set, return default",
			defaultValue: 30 * time.Second,
			expected:     30 * time.Second,
		},
		{
			name:         "env set to valid duration, return duration value",
			envValue:     "2m",
			defaultValue: 30 * time.Second,
			expected:     2 * time.Minute,
		},
		{
			name:         "env set to invalid duration, return default",
			envValue:     "soon",
			defaultValue: 30 * time.Second,
			expected:     30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_DURATION_VALUE"
			os.Unsetenv(key)
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			}

			assert.Equal(t, tt.expected, getEnvDuration(key, tt.defaultValue))
		})
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENV_FILE_PATH", "")
	for _, key := range []string{
		"CONGREGATE_DB_PATH", "CONGREGATE_LOG_LEVEL", "CONGREGATE_REMOTE_URL", "CONGREGATE_REMOTE_API_KEY",
		"CONGREGATE_SYNC_MAX_RETRIES", "CONGREGATE_SYNC_REJECTION_POLICY", "CONGREGATE_REMOTE_DEVICE_NAME",
	} {
		os.Unsetenv(key)
	}

	cfg, err := LoadFromEnv(dir, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ConfigDir())
	assert.Equal(t, filepath.Join(dir, "congregate.db"), cfg.Database.Path)
	assert.Equal(t, "WAL", cfg.Database.JournalMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, RejectionPolicyRetry, cfg.Sync.RejectionPolicy)
	assert.Equal(t, 30*time.Second, cfg.Sync.ProbeInterval)
	assert.Equal(t, 30*time.Second, cfg.Sync.RetryInitialInterval)
	assert.NotEmpty(t, cfg.Remote.DeviceName, "a device name is generated when none is configured")
	assert.NotContains(t, cfg.Remote.DeviceName, "_")
	assert.False(t, cfg.RemoteConfigured())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"CONGREGATE_REMOTE_URL=https://example.supabase.co\n"+
			"CONGREGATE_REMOTE_API_KEY=anon-key\n"+
			"CONGREGATE_SYNC_REJECTION_POLICY=dead-letter\n"), 0600))

	for _, key := range []string{"CONGREGATE_REMOTE_URL", "CONGREGATE_REMOTE_API_KEY", "CONGREGATE_SYNC_REJECTION_POLICY"} {
		os.Unsetenv(key)
		t.Cleanup(func() { os.Unsetenv(key) })
	}
	t.Setenv("ENV_FILE_PATH", envFile)

	cfg, err := LoadFromEnv(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "https://example.supabase.co", cfg.Remote.URL)
	assert.Equal(t, "anon-key", cfg.Remote.APIKey)
	assert.Equal(t, RejectionPolicyDeadLetter, cfg.Sync.RejectionPolicy)
	assert.True(t, cfg.RemoteConfigured())
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Database: DatabaseConfig{
			Path:         filepath.Join(t.TempDir(), "test.db"),
			BusyTimeout:  5000,
			ConnMaxLife:  5 * time.Minute,
			QueryTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Remote: RemoteConfig{
			Timeout:           10 * time.Second,
			RequestsPerMinute: 60,
			BurstLimit:        5,
		},
		Sync: SyncConfig{
			MaxRetries:      5,
			RejectionPolicy: RejectionPolicyRetry,
			ProbeInterval:   30 * time.Second,
			ProbeTimeout:    5 * time.Second,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database config",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging config",
		},
		{
			name:    "remote url without scheme",
			mutate:  func(c *Config) { c.Remote.URL = "example.com" },
			wantErr: "remote config",
		},
		{
			name:    "zero retry ceiling",
			mutate:  func(c *Config) { c.Sync.MaxRetries = 0 },
			wantErr: "sync config",
		},
		{
			name:    "unknown rejection policy",
			mutate:  func(c *Config) { c.Sync.RejectionPolicy = "drop" },
			wantErr: "invalid rejection policy",
		},
		{
			name: "retry window inverted",
			mutate: func(c *Config) {
				c.Sync.RetryEnabled = true
				c.Sync.RetryInitialInterval = time.Minute
				c.Sync.RetryMaxInterval = time.Second
			},
			wantErr: "retry max interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLogLevel("debug").String())
	assert.Equal(t, "WARN", ParseLogLevel("WARN").String())
	assert.Equal(t, "INFO", ParseLogLevel("bogus").String())
}
