package queue

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
	"github.com/tildaslashalef/congregate/internal/store"
)

// Queue is the durable pending operation queue
type Queue interface {
	// Enqueue stores a new operation with zero attempts and returns its id
	Enqueue(ctx context.Context, collection entity.Collection, kind Kind, payload entity.Record) (int64, error)

	// ListAll returns every operation in enqueue order
	ListAll(ctx context.Context) ([]*Operation, error)

	ListByCollection(ctx context.Context, collection entity.Collection) ([]*Operation, error)

	// Get returns nil, nil for an unknown id
	Get(ctx context.Context, id int64) (*Operation, error)

	// Remove is a no-op for unknown ids
	Remove(ctx context.Context, id int64) error

	// IncrementAttempt is a no-op for unknown ids
	IncrementAttempt(ctx context.Context, id int64) error

	// MarkDeadLetter raises the attempt count to ceiling, never lowering it
	MarkDeadLetter(ctx context.Context, id int64, ceiling int) error

	Count(ctx context.Context) (int, error)

	// Clear discards every operation. Administrative only.
	Clear(ctx context.Context) error
}

const table = "pending_operations"

var columns = []string{"id", "entity_collection", "operation_kind", "payload", "enqueued_at", "attempt_count"}

// SQLQueue implements Queue on the pending_operations table
type SQLQueue struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLQueue creates a new SQL backed queue
func NewSQLQueue(db *sql.DB, logger *loggy.Logger) *SQLQueue {
	return &SQLQueue{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Enqueue appends an operation
func (q *SQLQueue) Enqueue(ctx context.Context, collection entity.Collection, kind Kind, payload entity.Record) (int64, error) {
	data, err := json.Marshal(payload.Remote())
	if err != nil {
		return 0, fmt.Errorf("encoding %s payload: %w", kind, err)
	}

	query, args, err := q.builder.
		Insert(table).
		Columns("entity_collection", "operation_kind", "payload", "enqueued_at", "attempt_count").
		Values(string(collection), string(kind), string(data), time.Now().UTC(), 0).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building enqueue query: %w", err)
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, store.Wrap("enqueue", collection, fmt.Errorf("executing enqueue query: %w", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, store.Wrap("enqueue", collection, fmt.Errorf("reading operation id: %w", err))
	}

	q.logger.Debug("Operation enqueued", "id", id, "collection", collection, "kind", kind, "record_id", payload.ID())
	return id, nil
}

// ListAll returns every operation ordered by id
func (q *SQLQueue) ListAll(ctx context.Context) ([]*Operation, error) {
	return q.list(ctx, q.builder.Select(columns...).From(table).OrderBy("id ASC"), "")
}

// ListByCollection returns the operations of one collection ordered by id
func (q *SQLQueue) ListByCollection(ctx context.Context, collection entity.Collection) ([]*Operation, error) {
	return q.list(ctx, q.builder.Select(columns...).
		From(table).
		Where(sq.Eq{"entity_collection": string(collection)}).
		OrderBy("id ASC"), collection)
}

func (q *SQLQueue) list(ctx context.Context, b sq.SelectBuilder, collection entity.Collection) ([]*Operation, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list operations query: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap("list operations", collection, fmt.Errorf("executing list operations query: %w", err))
	}
	defer rows.Close()

	ops := make([]*Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, store.Wrap("list operations", collection, err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list operations", collection, fmt.Errorf("iterating operation rows: %w", err))
	}

	return ops, nil
}

// Get returns a single operation
func (q *SQLQueue) Get(ctx context.Context, id int64) (*Operation, error) {
	query, args, err := q.builder.Select(columns...).From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get operation query: %w", err)
	}

	op, err := scanOperation(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get operation", "", err)
	}
	return op, nil
}

// Remove deletes an operation after a successful replay
func (q *SQLQueue) Remove(ctx context.Context, id int64) error {
	query, args, err := q.builder.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building remove operation query: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return store.Wrap("remove operation", "", fmt.Errorf("executing remove operation query: %w", err))
	}
	return nil
}

// IncrementAttempt bumps the attempt count in place, so concurrent writers never lose an increment
func (q *SQLQueue) IncrementAttempt(ctx context.Context, id int64) error {
	query, args, err := q.builder.
		Update(table).
		Set("attempt_count", sq.Expr("attempt_count + 1")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building increment attempt query: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return store.Wrap("increment attempt", "", fmt.Errorf("executing increment attempt query: %w", err))
	}
	return nil
}

// MarkDeadLetter raises attempt_count to the ceiling
func (q *SQLQueue) MarkDeadLetter(ctx context.Context, id int64, ceiling int) error {
	query, args, err := q.builder.
		Update(table).
		Set("attempt_count", sq.Expr("MAX(attempt_count, ?)", ceiling)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building dead-letter query: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return store.Wrap("dead-letter", "", fmt.Errorf("executing dead-letter query: %w", err))
	}
	return nil
}

// Count returns the number of pending operations
func (q *SQLQueue) Count(ctx context.Context) (int, error) {
	query, args, err := q.builder.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count operations query: %w", err)
	}

	var n int
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, store.Wrap("count operations", "", fmt.Errorf("executing count operations query: %w", err))
	}
	return n, nil
}

// Clear removes every pending operation
func (q *SQLQueue) Clear(ctx context.Context) error {
	query, args, err := q.builder.Delete(table).ToSql()
	if err != nil {
		return fmt.Errorf("building clear queue query: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return store.Wrap("clear queue", "", fmt.Errorf("executing clear queue query: %w", err))
	}

	q.logger.Warn("Pending operation queue cleared")
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*Operation, error) {
	var (
		op         Operation
		collection string
		kind       string
		payload    string
	)
	if err := row.Scan(&op.ID, &collection, &kind, &payload, &op.EnqueuedAt, &op.AttemptCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning operation row: %w", err)
	}

	op.Collection = entity.Collection(collection)
	op.Kind = Kind(kind)

	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	if err := dec.Decode(&op.Payload); err != nil {
		return nil, fmt.Errorf("decoding operation %d payload: %w", op.ID, err)
	}

	return &op, nil
}
