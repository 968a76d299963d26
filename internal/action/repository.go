package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Repository provides database operations for action items
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new action repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const actionColumns = `
	a.id, a.member_id, m.name, a.type, a.priority, a.title, a.description, a.due_date,
	a.status, a.result, COALESCE(a.assigned_to, ''), a.completed_at, a.created_at, a.updated_at`

func scanAction(row pgx.Row) (*ActionItem, error) {
	a := &ActionItem{}
	err := row.Scan(
		&a.ID, &a.MemberID, &a.MemberName, &a.Type, &a.Priority, &a.Title, &a.Description, &a.DueDate,
		&a.Status, &a.Result, &a.AssignedTo, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func collectActions(rows pgx.Rows) ([]ActionItem, error) {
	defer rows.Close()

	var items []ActionItem
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan action item")
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read action items")
	}
	return items, nil
}

// ListCandidates returns active members whose score reaches minScore
func (r *Repository) ListCandidates(ctx context.Context, minScore float64) ([]Candidate, error) {
	query := `
		SELECT id, name, risk_score, risk_level, risk_reasons, days_since_last_checkin
		FROM members
		WHERE status = 'active' AND risk_score >= $1::double precision
		ORDER BY risk_score DESC, id`

	rows, err := r.pool.Query(ctx, query, minScore)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list action candidates")
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.MemberID, &c.Name, &c.RiskScore, &c.RiskLevel, &c.RiskReasons, &c.DaysSinceLastCheckin); err != nil {
			return nil, errors.Wrap(err, "failed to scan action candidate")
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list action candidates")
	}
	return candidates, nil
}

// LatestOpen returns the member's most recent pending or in-progress action,
// or nil when there is none.
func (r *Repository) LatestOpen(ctx context.Context, memberID types.ID) (*ActionItem, error) {
	query := `SELECT ` + actionColumns + `
		FROM action_items a JOIN members m ON m.id = a.member_id
		WHERE a.member_id = $1 AND a.status IN ('pending', 'in-progress')
		ORDER BY a.created_at DESC
		LIMIT 1`

	a, err := scanAction(r.pool.QueryRow(ctx, query, memberID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get open action")
	}
	return a, nil
}

// Create inserts a new action item
func (r *Repository) Create(ctx context.Context, a *ActionItem) error {
	query := `
		INSERT INTO action_items (id, member_id, type, priority, title, description, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		a.ID, a.MemberID, a.Type, a.Priority, a.Title, a.Description, a.DueDate, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create action item")
	}
	return nil
}

// Get retrieves an action item by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*ActionItem, error) {
	query := `SELECT ` + actionColumns + `
		FROM action_items a JOIN members m ON m.id = a.member_id
		WHERE a.id = $1`

	a, err := scanAction(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("action item", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get action item")
	}
	return a, nil
}

// Update persists a status change. It fails with a conflict when the stored
// status no longer equals expected, so two staff members cannot both close
// the same action.
func (r *Repository) Update(ctx context.Context, a *ActionItem, expected Status) error {
	query := `
		UPDATE action_items SET
			status = $2, result = $3, assigned_to = NULLIF($4, ''), completed_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		a.ID, a.Status, a.Result, a.AssignedTo, a.CompletedAt, expected,
	).Scan(&a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.Conflict("action item was modified concurrently")
	}
	if err != nil {
		return errors.Wrap(err, "failed to update action item")
	}
	return nil
}

// List lists action items with filters, most urgent first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]ActionItem, int, error) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("a.type = $%d", argNum))
		args = append(args, *filter.Type)
		argNum++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM action_items a "+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count action items")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s
		FROM action_items a JOIN members m ON m.id = a.member_id
		%s
		ORDER BY a.due_date, a.type DESC, a.created_at DESC
		LIMIT $%d OFFSET $%d`, actionColumns, where, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list action items")
	}
	items, err := collectActions(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByMember returns a member's actions, newest first
func (r *Repository) ListByMember(ctx context.Context, memberID types.ID, limit int) ([]ActionItem, error) {
	query := `SELECT ` + actionColumns + `
		FROM action_items a JOIN members m ON m.id = a.member_id
		WHERE a.member_id = $1
		ORDER BY a.created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, memberID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list member actions")
	}
	return collectActions(rows)
}
