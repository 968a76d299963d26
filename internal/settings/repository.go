package settings

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/gym-retention/platform/internal/shared/errors"
)

// Store is the persistence the settings service needs
type Store interface {
	Get(ctx context.Context, key string) (*Setting, error)
	Put(ctx context.Context, setting *Setting) error
	List(ctx context.Context) ([]Setting, error)
}

// Repository stores settings in the settings table
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new settings repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the setting for key or a not found error
func (r *Repository) Get(ctx context.Context, key string) (*Setting, error) {
	query := `
		SELECT key, value, category, description, updated_at
		FROM settings
		WHERE key = $1`

	s := &Setting{}
	var value []byte
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&s.Key, &value, &s.Category, &s.Description, &s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("setting", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get setting")
	}
	s.Value = json.RawMessage(value)

	return s, nil
}

// Put inserts or replaces a setting. Empty category/description keep the stored ones.
func (r *Repository) Put(ctx context.Context, s *Setting) error {
	query := `
		INSERT INTO settings (key, value, category, description, updated_at)
		VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'general'), $4, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			category = COALESCE(NULLIF($3, ''), settings.category),
			description = COALESCE(NULLIF($4, ''), settings.description),
			updated_at = NOW()
		RETURNING category, description, updated_at`

	err := r.pool.QueryRow(ctx, query, s.Key, []byte(s.Value), s.Category, s.Description).
		Scan(&s.Category, &s.Description, &s.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save setting")
	}
	return nil
}

// List returns every setting ordered by category and key
func (r *Repository) List(ctx context.Context) ([]Setting, error) {
	query := `
		SELECT key, value, category, description, updated_at
		FROM settings
		ORDER BY category, key`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list settings")
	}
	defer rows.Close()

	var result []Setting
	for rows.Next() {
		var s Setting
		var value []byte
		if err := rows.Scan(&s.Key, &value, &s.Category, &s.Description, &s.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan setting")
		}
		s.Value = json.RawMessage(value)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list settings")
	}

	return result, nil
}
