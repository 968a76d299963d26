package member

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Repository provides database operations for members and their history
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new member repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const memberColumns = `
	id, pacto_member_id, pacto_matricula, COALESCE(pacto_aluno_id, ''), COALESCE(pacto_ficha_id, ''),
	name, email, phone, enrollment_date, current_plan_id, plan_name, plan_value, status,
	last_checkin, days_since_last_checkin, checkins_this_month, average_checkins_per_month,
	risk_score, risk_level, risk_reasons, risk_scored_at,
	created_at, updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	m := &Member{}
	err := row.Scan(
		&m.ID, &m.PactoMemberID, &m.PactoMatricula, &m.PactoAlunoID, &m.PactoFichaID,
		&m.Name, &m.Email, &m.Phone, &m.EnrollmentDate, &m.CurrentPlanID, &m.PlanName, &m.PlanValue, &m.Status,
		&m.LastCheckin, &m.DaysSinceLastCheckin, &m.CheckinsThisMonth, &m.AverageCheckins,
		&m.RiskScore, &m.RiskLevel, &m.RiskReasons, &m.RiskScoredAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func collectMembers(rows pgx.Rows) ([]Member, error) {
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan member")
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read members")
	}
	return members, nil
}

// --- Member Operations ---

// Get retrieves a member by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

	m, err := scanMember(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("member", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get member")
	}
	return m, nil
}

// ListActive returns every member with status active
func (r *Repository) ListActive(ctx context.Context) ([]Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE status = 'active' ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active members")
	}
	return collectMembers(rows)
}

// ListByMatricula returns the members synced from one upstream gym account
func (r *Repository) ListByMatricula(ctx context.Context, matricula string) ([]Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE pacto_matricula = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, matricula)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list members by matricula")
	}
	return collectMembers(rows)
}

// ListIDs returns the IDs of all members regardless of status
func (r *Repository) ListIDs(ctx context.Context) ([]types.ID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM members ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list member ids")
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan member id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list member ids")
	}
	return ids, nil
}

// List lists members with filters, highest risk first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Member, int, error) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.RiskLevel != nil {
		conditions = append(conditions, fmt.Sprintf("risk_level = $%d", argNum))
		args = append(args, *filter.RiskLevel)
		argNum++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM members "+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count members")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM members %s ORDER BY risk_score DESC, name LIMIT $%d OFFSET $%d`,
		memberColumns, where, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list members")
	}
	members, err := collectMembers(rows)
	if err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

// UpdateRisk replaces the risk fields of a member. Reasons are overwritten, never merged.
func (r *Repository) UpdateRisk(ctx context.Context, id types.ID, u RiskUpdate) error {
	reasons := u.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE members SET
			risk_score = $2, risk_level = $3, risk_reasons = $4,
			risk_scored_at = $5, updated_at = NOW()
		WHERE id = $1`,
		id, u.Score, u.Level, reasons, u.ScoredAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update member risk")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("member", id.String())
	}
	return nil
}

// Upsert inserts or updates a member keyed by its upstream identifier. Risk
// fields and activity aggregates are left untouched.
func (r *Repository) Upsert(ctx context.Context, m *Member) error {
	query := `
		INSERT INTO members (
			pacto_member_id, pacto_matricula, pacto_aluno_id, pacto_ficha_id,
			name, email, phone, enrollment_date, plan_name, plan_value, status, gym_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			(SELECT id FROM gyms WHERE pacto_matricula = $2)
		)
		ON CONFLICT (pacto_member_id) DO UPDATE SET
			gym_id = COALESCE(EXCLUDED.gym_id, members.gym_id),
			pacto_matricula = EXCLUDED.pacto_matricula,
			pacto_aluno_id = EXCLUDED.pacto_aluno_id,
			pacto_ficha_id = EXCLUDED.pacto_ficha_id,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			enrollment_date = EXCLUDED.enrollment_date,
			plan_name = EXCLUDED.plan_name,
			plan_value = EXCLUDED.plan_value,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		m.PactoMemberID, m.PactoMatricula, m.PactoAlunoID, m.PactoFichaID,
		m.Name, m.Email, m.Phone, m.EnrollmentDate, m.PlanName, m.PlanValue, m.Status,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to upsert member")
	}
	return nil
}

// UpdateActivity stores freshly computed check-in aggregates
func (r *Repository) UpdateActivity(ctx context.Context, id types.ID, a Activity) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE members SET
			last_checkin = $2, days_since_last_checkin = $3,
			checkins_this_month = $4, average_checkins_per_month = $5,
			updated_at = NOW()
		WHERE id = $1`,
		id, a.LastCheckin, a.DaysSinceLastCheckin, a.CheckinsThisMonth, a.AverageCheckins,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update member activity")
	}
	return nil
}

// Metrics counts active members per risk level
func (r *Repository) Metrics(ctx context.Context) (RiskMetrics, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE risk_level = 'low'),
			COUNT(*) FILTER (WHERE risk_level = 'medium'),
			COUNT(*) FILTER (WHERE risk_level = 'high'),
			COALESCE(SUM(average_checkins_per_month), 0)
		FROM members
		WHERE status = 'active'`

	var low, medium, high int
	var sum float64
	if err := r.pool.QueryRow(ctx, query).Scan(&low, &medium, &high, &sum); err != nil {
		return RiskMetrics{}, errors.Wrap(err, "failed to compute member metrics")
	}
	return NewRiskMetrics(low, medium, high, sum), nil
}

// --- History Operations ---

// PlanChangesSince returns a member's plan changes on or after since, newest first
func (r *Repository) PlanChangesSince(ctx context.Context, memberID types.ID, since time.Time) ([]PlanChange, error) {
	query := `
		SELECT id, member_id, change_type, change_date, old_plan_id, new_plan_id, old_value, new_value
		FROM plan_changes
		WHERE member_id = $1 AND change_date >= $2
		ORDER BY change_date DESC`

	rows, err := r.pool.Query(ctx, query, memberID, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list plan changes")
	}
	defer rows.Close()

	var changes []PlanChange
	for rows.Next() {
		var c PlanChange
		if err := rows.Scan(&c.ID, &c.MemberID, &c.ChangeType, &c.ChangeDate,
			&c.OldPlanID, &c.NewPlanID, &c.OldValue, &c.NewValue); err != nil {
			return nil, errors.Wrap(err, "failed to scan plan change")
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list plan changes")
	}
	return changes, nil
}

// PauseRequests returns a member's pause requests, optionally only those with status
func (r *Repository) PauseRequests(ctx context.Context, memberID types.ID, status string) ([]PauseRequest, error) {
	query := `
		SELECT id, member_id, status, start_date, end_date, reason
		FROM pause_requests
		WHERE member_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY start_date DESC`

	rows, err := r.pool.Query(ctx, query, memberID, status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pause requests")
	}
	defer rows.Close()

	var pauses []PauseRequest
	for rows.Next() {
		var p PauseRequest
		if err := rows.Scan(&p.ID, &p.MemberID, &p.Status, &p.StartDate, &p.EndDate, &p.Reason); err != nil {
			return nil, errors.Wrap(err, "failed to scan pause request")
		}
		pauses = append(pauses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list pause requests")
	}
	return pauses, nil
}

// ActivePauses returns the pause requests currently in effect
func (r *Repository) ActivePauses(ctx context.Context, memberID types.ID) ([]PauseRequest, error) {
	return r.PauseRequests(ctx, memberID, PauseActive)
}

// --- Checkin Operations ---

// UpsertCheckin inserts or refreshes a check-in keyed by member and upstream class id
func (r *Repository) UpsertCheckin(ctx context.Context, c *Checkin) error {
	query := `
		INSERT INTO checkins (member_id, pacto_aula_id, checkin_date, checkin_time, activity, confirmed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (member_id, pacto_aula_id) DO UPDATE SET
			checkin_date = EXCLUDED.checkin_date,
			checkin_time = EXCLUDED.checkin_time,
			activity = EXCLUDED.activity,
			confirmed = EXCLUDED.confirmed
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		c.MemberID, c.PactoAulaID, c.Date, c.Time, c.Activity, c.Confirmed,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to upsert checkin")
	}
	return nil
}

// CheckinDates returns the dates of all of a member's check-ins, newest first
func (r *Repository) CheckinDates(ctx context.Context, memberID types.ID) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT checkin_date FROM checkins WHERE member_id = $1 ORDER BY checkin_date DESC`, memberID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list checkin dates")
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, errors.Wrap(err, "failed to scan checkin date")
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list checkin dates")
	}
	return dates, nil
}

// RecentCheckins returns a member's latest check-ins
func (r *Repository) RecentCheckins(ctx context.Context, memberID types.ID, limit int) ([]Checkin, error) {
	query := `
		SELECT id, member_id, pacto_aula_id, checkin_date, checkin_time, activity, confirmed, created_at
		FROM checkins
		WHERE member_id = $1
		ORDER BY checkin_date DESC, checkin_time DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, memberID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list checkins")
	}
	defer rows.Close()

	var checkins []Checkin
	for rows.Next() {
		var c Checkin
		if err := rows.Scan(&c.ID, &c.MemberID, &c.PactoAulaID, &c.Date, &c.Time,
			&c.Activity, &c.Confirmed, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan checkin")
		}
		checkins = append(checkins, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list checkins")
	}
	return checkins, nil
}
