// Package database opens the SQLite file that backs the local store and the pending operation queue
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tildaslashalef/congregate/internal/config"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"github.com/tildaslashalef/congregate/internal/migrations"
)

// Open opens the database described by cfg and verifies the connection.
// The caller owns the returned handle.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	loggy.Debug("Opening database", "path", cfg.Path)

	db, err := sql.Open("sqlite3", buildSQLiteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// SQLite supports only one writer at a time; the store and the queue share this connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !isMemory(cfg.Path) {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// OpenMemory opens a migrated in-memory database, mostly for tests
func OpenMemory() (*sql.DB, error) {
	db, err := Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

func buildSQLiteDSN(cfg config.DatabaseConfig) string {
	if isMemory(cfg.Path) {
		return cfg.Path
	}

	params := url.Values{}
	params.Add("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	params.Add("_journal_mode", cfg.JournalMode)
	params.Add("_synchronous", cfg.SynchronousMode)
	if cfg.CacheSize != 0 {
		params.Add("_cache_size", strconv.Itoa(cfg.CacheSize))
	}
	params.Add("_foreign_keys", strconv.FormatBool(cfg.ForeignKeys))

	return fmt.Sprintf("%s?%s", cfg.Path, params.Encode())
}

// newMigrator wires the embedded migrations to db. The returned cleanup closes
// only the source: closing the migrate instance would close db as well.
func newMigrator(db *sql.DB) (*migrate.Migrate, func(), error) {
	src, err := migrations.GetSource()
	if err != nil {
		return nil, nil, err
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m, func() { src.Close() }, nil
}

// RunMigrations applies all pending migrations
func RunMigrations(db *sql.DB) error {
	m, cleanup, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		loggy.Error("Failed to apply migrations", "error", err)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return logVersion(m, "Database migration complete")
}

// RevertMigrations reverts migrations back by the specified number of steps
func RevertMigrations(db *sql.DB, steps int) error {
	m, cleanup, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		loggy.Error("Failed to revert migrations", "error", err)
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	return logVersion(m, "Database migration reversion complete")
}

// Version reports the current schema version; zero means no migration applied
func Version(db *sql.DB) (uint, bool, error) {
	m, cleanup, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	defer cleanup()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func logVersion(m *migrate.Migrate, msg string) error {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	loggy.Debug(msg, "version", version, "dirty", dirty)
	return nil
}
