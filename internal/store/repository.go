// Package store is the durable local mirror of every entity collection
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/loggy"
)

// Repository defines the local record store
type Repository interface {
	// Put inserts or fully replaces the record with the same id
	Put(ctx context.Context, collection entity.Collection, record entity.Record) error

	// Get returns nil, nil when the record is absent
	Get(ctx context.Context, collection entity.Collection, id string) (entity.Record, error)

	GetAll(ctx context.Context, collection entity.Collection) ([]entity.Record, error)

	// Delete is a no-op for unknown ids
	Delete(ctx context.Context, collection entity.Collection, id string) error

	Clear(ctx context.Context, collection entity.Collection) error

	CountUnsynced(ctx context.Context, collection entity.Collection) (int, error)
}

// SQLRepository implements Repository on the records table
type SQLRepository struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLRepository creates a new store repository
func NewSQLRepository(db *sql.DB, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Put upserts in a single statement so a record is either fully written or not at all.
// The synced flag lives in its own column and is stripped from the stored JSON.
func (r *SQLRepository) Put(ctx context.Context, collection entity.Collection, record entity.Record) error {
	id := record.ID()
	if id == "" {
		return ErrMissingID
	}

	data, err := json.Marshal(record.Remote())
	if err != nil {
		return fmt.Errorf("encoding %s record %s: %w", collection, id, err)
	}

	query, args, err := r.builder.
		Insert("records").
		Columns("collection", "id", "data", "synced", "updated_at").
		Values(string(collection), id, string(data), record.Synced(), time.Now().UTC()).
		Suffix("ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, synced = excluded.synced, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building put record query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return Wrap("put", collection, fmt.Errorf("executing put record query: %w", err))
	}

	return nil
}

// Get retrieves one record by id
func (r *SQLRepository) Get(ctx context.Context, collection entity.Collection, id string) (entity.Record, error) {
	query, args, err := r.builder.
		Select("data", "synced").
		From("records").
		Where(sq.Eq{"collection": string(collection), "id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get record query: %w", err)
	}

	var (
		data   string
		synced bool
	)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&data, &synced); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, Wrap("get", collection, fmt.Errorf("executing get record query: %w", err))
	}

	return decodeRecord(data, synced)
}

// GetAll retrieves every record of a collection
func (r *SQLRepository) GetAll(ctx context.Context, collection entity.Collection) ([]entity.Record, error) {
	query, args, err := r.builder.
		Select("data", "synced").
		From("records").
		Where(sq.Eq{"collection": string(collection)}).
		OrderBy("updated_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list records query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Wrap("list", collection, fmt.Errorf("executing list records query: %w", err))
	}
	defer rows.Close()

	records := make([]entity.Record, 0)
	for rows.Next() {
		var (
			data   string
			synced bool
		)
		if err := rows.Scan(&data, &synced); err != nil {
			return nil, Wrap("list", collection, fmt.Errorf("scanning record row: %w", err))
		}

		record, err := decodeRecord(data, synced)
		if err != nil {
			r.logger.Warn("Skipping undecodable local record", "collection", collection, "error", err)
			continue
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, Wrap("list", collection, fmt.Errorf("iterating record rows: %w", err))
	}

	return records, nil
}

// Delete removes one record
func (r *SQLRepository) Delete(ctx context.Context, collection entity.Collection, id string) error {
	query, args, err := r.builder.
		Delete("records").
		Where(sq.Eq{"collection": string(collection), "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete record query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return Wrap("delete", collection, fmt.Errorf("executing delete record query: %w", err))
	}

	return nil
}

// Clear removes every record of a collection
func (r *SQLRepository) Clear(ctx context.Context, collection entity.Collection) error {
	query, args, err := r.builder.
		Delete("records").
		Where(sq.Eq{"collection": string(collection)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building clear records query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return Wrap("clear", collection, fmt.Errorf("executing clear records query: %w", err))
	}

	return nil
}

// CountUnsynced counts records still waiting for server confirmation
func (r *SQLRepository) CountUnsynced(ctx context.Context, collection entity.Collection) (int, error) {
	query, args, err := r.builder.
		Select("COUNT(*)").
		From("records").
		Where(sq.Eq{"collection": string(collection), "synced": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count unsynced query: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, Wrap("count", collection, fmt.Errorf("executing count unsynced query: %w", err))
	}

	return n, nil
}

func decodeRecord(data string, synced bool) (entity.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var record entity.Record
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	if record == nil {
		record = entity.Record{}
	}
	record[entity.FieldSynced] = synced

	return record, nil
}
