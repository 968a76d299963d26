package syncjob

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Repository stores sync run logs
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sync log repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Start records a run as running
func (r *Repository) Start(ctx context.Context, l *Log) error {
	if l.ID.IsZero() {
		l.ID = types.NewID()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_logs (id, sync_type, status, records_processed, started_at)
		VALUES ($1, $2, $3, 0, $4)`,
		l.ID, l.SyncType, l.Status, l.StartedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create sync log")
	}
	return nil
}

// Finish stores the outcome of a run
func (r *Repository) Finish(ctx context.Context, l *Log) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_logs SET
			status = $2, records_processed = $3, error_message = NULLIF($4, ''),
			completed_at = $5, duration_ms = $6
		WHERE id = $1`,
		l.ID, l.Status, l.RecordsProcessed, l.ErrorMessage, l.CompletedAt, l.DurationMS,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update sync log")
	}
	return nil
}

// Recent returns the latest runs, newest first
func (r *Repository) Recent(ctx context.Context, limit int) ([]Log, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sync_type, status, records_processed, COALESCE(error_message, ''),
			started_at, completed_at, COALESCE(duration_ms, 0)
		FROM sync_logs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sync logs")
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.SyncType, &l.Status, &l.RecordsProcessed, &l.ErrorMessage,
			&l.StartedAt, &l.CompletedAt, &l.DurationMS); err != nil {
			return nil, errors.Wrap(err, "failed to scan sync log")
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list sync logs")
	}
	return logs, nil
}
