package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"github.com/tildaslashalef/congregate/internal/ulid"
)

// Repository stores the history of synchronization passes
type Repository interface {
	// CreateSyncLog stores a pass summary, assigning an id when missing
	CreateSyncLog(ctx context.Context, log *SyncLog) error

	// GetSyncLogs returns logs newest first
	GetSyncLogs(ctx context.Context, limit, offset int) ([]*SyncLog, error)

	// GetLatestSyncLog returns nil, nil when no pass was recorded yet
	GetLatestSyncLog(ctx context.Context) (*SyncLog, error)
}

var logColumns = []string{
	"id", "pass_id", "trigger_kind", "success", "synced_count", "failed_count",
	"dead_lettered_count", "error_message", "started_at", "completed_at",
}

// SQLRepository implements Repository on the sync_logs table
type SQLRepository struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLRepository creates a new SQL repository
func NewSQLRepository(db *sql.DB, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// CreateSyncLog creates a new sync log
func (r *SQLRepository) CreateSyncLog(ctx context.Context, log *SyncLog) error {
	if log.ID == "" {
		log.ID = ulid.SyncLogID()
	}

	query, args, err := r.builder.Insert("sync_logs").
		Columns(logColumns...).
		Values(log.ID, log.PassID, string(log.Trigger), log.Success, log.Synced, log.Failed,
			log.DeadLettered, log.ErrorMessage, log.StartedAt, log.CompletedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building create sync log query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing create sync log query: %w", err)
	}

	return nil
}

// GetSyncLogs retrieves sync logs, most recent first
func (r *SQLRepository) GetSyncLogs(ctx context.Context, limit, offset int) ([]*SyncLog, error) {
	q := r.builder.Select(logColumns...).
		From("sync_logs").
		OrderBy("started_at DESC", "id DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get sync logs query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get sync logs query: %w", err)
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		log, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync log rows: %w", err)
	}

	return logs, nil
}

// GetLatestSyncLog retrieves the most recent pass
func (r *SQLRepository) GetLatestSyncLog(ctx context.Context) (*SyncLog, error) {
	query, args, err := r.builder.Select(logColumns...).
		From("sync_logs").
		OrderBy("started_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get latest sync log query: %w", err)
	}

	log, err := scanSyncLog(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("executing get latest sync log query: %w", err)
	}

	return log, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncLog(row rowScanner) (*SyncLog, error) {
	var (
		log     SyncLog
		trigger string
		message sql.NullString
	)
	err := row.Scan(
		&log.ID,
		&log.PassID,
		&trigger,
		&log.Success,
		&log.Synced,
		&log.Failed,
		&log.DeadLettered,
		&message,
		&log.StartedAt,
		&log.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning sync log row: %w", err)
	}

	log.Trigger = Trigger(trigger)
	log.ErrorMessage = message.String
	return &log, nil
}

const errorSeparator = "\n"

func joinErrors(msgs []string) string {
	return strings.Join(msgs, errorSeparator)
}

func splitErrors(s string) []string {
	return strings.Split(s, errorSeparator)
}
