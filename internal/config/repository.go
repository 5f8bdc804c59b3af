package config

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"github.com/tildaslashalef/congregate/internal/ulid"
)

// Setting keys persisted in the local database. They override the .env
// values so a device can be pointed at a project without editing files.
const (
	KeyRemoteURL        = "remote.url"
	KeyRemoteAPIKey     = "remote.api_key"
	KeyRemoteToken      = "remote.token"
	KeyRemoteDeviceName = "remote.device_name"
	KeySyncAuto         = "sync.auto"
)

// secretKeys are obfuscated at rest
var secretKeys = map[string]bool{
	KeyRemoteAPIKey: true,
	KeyRemoteToken:  true,
}

// SettingsRepository defines operations for managing settings in the database
type SettingsRepository interface {
	// GetSetting returns "" when the key is not set
	GetSetting(ctx context.Context, key string) (string, error)

	// GetSettings retrieves every setting whose key starts with prefix
	GetSettings(ctx context.Context, prefix string) (map[string]string, error)

	SetSetting(ctx context.Context, key, value string) error

	DeleteSetting(ctx context.Context, key string) error
}

// SQLSettingsRepository implements SettingsRepository using a SQL database
type SQLSettingsRepository struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder squirrel.StatementBuilderType
}

// NewSQLSettingsRepository creates a new SQL settings repository
func NewSQLSettingsRepository(db *sql.DB, logger *loggy.Logger) *SQLSettingsRepository {
	return &SQLSettingsRepository{
		db:      db,
		logger:  logger,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// GetSetting retrieves a setting by key
func (r *SQLSettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	query, args, err := r.builder.Select("value").
		From("settings").
		Where(squirrel.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building get setting query: %w", err)
	}

	var value string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("executing get setting query: %w", err)
	}

	if secretKeys[key] {
		return deobfuscate(value)
	}
	return value, nil
}

// GetSettings retrieves multiple settings by prefix
func (r *SQLSettingsRepository) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	query, args, err := r.builder.Select("key", "value").
		From("settings").
		Where(squirrel.Like{"key": prefix + "%"}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get settings query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get settings query: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}

		if secretKeys[key] {
			value, err = deobfuscate(value)
			if err != nil {
				r.logger.Warn("Skipping unreadable secret setting", "key", key, "error", err)
				continue
			}
		}
		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting rows: %w", err)
	}

	return settings, nil
}

// SetSetting inserts or replaces a setting value
func (r *SQLSettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	stored := value
	if secretKeys[key] && value != "" {
		stored = obfuscate(value)
	}

	now := time.Now().UTC()
	query, args, err := r.builder.Insert("settings").
		Columns("id", "key", "value", "created_at", "updated_at").
		Values(ulid.SettingID(), key, stored, now, now).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building set setting query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing set setting query: %w", err)
	}

	return nil
}

// DeleteSetting deletes a setting
func (r *SQLSettingsRepository) DeleteSetting(ctx context.Context, key string) error {
	query, args, err := r.builder.Delete("settings").
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete setting query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete setting query: %w", err)
	}

	return nil
}

// Secrets are reversed and base64 encoded behind a marker. This keeps them
// out of casual view in the database file; it is not encryption.
const obfuscationMarker = "OBFS:"

func obfuscate(secret string) string {
	return obfuscationMarker + base64.StdEncoding.EncodeToString([]byte(reverse(secret)))
}

func deobfuscate(stored string) (string, error) {
	if !strings.HasPrefix(stored, obfuscationMarker) {
		return stored, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, obfuscationMarker))
	if err != nil {
		return "", fmt.Errorf("decoding obfuscated value: %w", err)
	}
	return reverse(string(decoded)), nil
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
