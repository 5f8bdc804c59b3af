package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goombaio/namegenerator"
	"github.com/joho/godotenv"
)

// DefaultConfigDir returns ~/.congregate
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".congregate"), nil
}

// LoadFromEnv loads configuration from environment variables.
// Parameters:
// - configDir: Directory holding the .env file, database and log (empty for ~/.congregate)
// - configFilePath: Path to the .env file (empty for <configDir>/.env)
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg.configDir = configDir

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// ENV_FILE_PATH overrides every other location
	if envFilePath := getEnvString("ENV_FILE_PATH", ""); envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else if err := godotenv.Load(configFilePath); err != nil {
		_ = godotenv.Load() // Ignore errors if file doesn't exist
	}

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("CONGREGATE_DB_PATH", filepath.Join(configDir, "congregate.db")),
		BusyTimeout:     getEnvInt("CONGREGATE_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("CONGREGATE_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("CONGREGATE_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("CONGREGATE_DB_CACHE_SIZE", -16000),
		ForeignKeys:     getEnvBool("CONGREGATE_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("CONGREGATE_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("CONGREGATE_DB_QUERY_TIMEOUT", 30*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("CONGREGATE_LOG_LEVEL", "info"),
		Format:     getEnvString("CONGREGATE_LOG_FORMAT", "text"),
		Output:     getEnvString("CONGREGATE_LOG_OUTPUT", filepath.Join(configDir, "congregate.log")),
		AddSource:  getEnvBool("CONGREGATE_LOG_ADD_SOURCE", true),
		TimeFormat: getTimeFormat(getEnvString("CONGREGATE_LOG_TIME_FORMAT", "RFC3339")),
		MaxSizeMB:  getEnvInt("CONGREGATE_LOG_MAX_SIZE_MB", 10),
		MaxBackups: getEnvInt("CONGREGATE_LOG_MAX_BACKUPS", 3),
		MaxAgeDays: getEnvInt("CONGREGATE_LOG_MAX_AGE_DAYS", 28),
	}

	cfg.Remote = RemoteConfig{
		URL:               getEnvString("CONGREGATE_REMOTE_URL", ""),
		APIKey:            getEnvString("CONGREGATE_REMOTE_API_KEY", ""),
		Token:             getEnvString("CONGREGATE_REMOTE_TOKEN", ""),
		Timeout:           getEnvDuration("CONGREGATE_REMOTE_TIMEOUT", 15*time.Second),
		RequestsPerMinute: getEnvInt("CONGREGATE_REMOTE_REQUESTS_PER_MINUTE", 300),
		BurstLimit:        getEnvInt("CONGREGATE_REMOTE_BURST_LIMIT", 10),
		DeviceName:        getEnvString("CONGREGATE_REMOTE_DEVICE_NAME", ""),
	}
	if cfg.Remote.DeviceName == "" {
		cfg.Remote.DeviceName = GenerateDeviceName()
	}

	cfg.Sync = SyncConfig{
		MaxRetries:           getEnvInt("CONGREGATE_SYNC_MAX_RETRIES", 5),
		RejectionPolicy:      getEnvString("CONGREGATE_SYNC_REJECTION_POLICY", RejectionPolicyRetry),
		AutoSync:             getEnvBool("CONGREGATE_SYNC_AUTO", true),
		ForceOffline:         getEnvBool("CONGREGATE_SYNC_FORCE_OFFLINE", false),
		ProbeInterval:        getEnvDuration("CONGREGATE_SYNC_PROBE_INTERVAL", 30*time.Second),
		ProbeTimeout:         getEnvDuration("CONGREGATE_SYNC_PROBE_TIMEOUT", 5*time.Second),
		RetryEnabled:         getEnvBool("CONGREGATE_SYNC_RETRY_ENABLED", false),
		RetryInitialInterval: getEnvDuration("CONGREGATE_SYNC_RETRY_INITIAL_INTERVAL", 30*time.Second),
		RetryMaxInterval:     getEnvDuration("CONGREGATE_SYNC_RETRY_MAX_INTERVAL", 10*time.Minute),
	}

	return cfg, cfg.Validate()
}

// GenerateDeviceName returns a random human readable name for this installation
func GenerateDeviceName() string {
	seed := time.Now().UTC().UnixNano()
	name := namegenerator.NewNameGenerator(seed).Generate()
	return strings.ReplaceAll(name, "_", "-")
}
