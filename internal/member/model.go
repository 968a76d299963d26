package member

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gym-retention/platform/internal/shared/types"
)

// Status of a gym membership
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// RiskLevel is the bucket a risk score falls into
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Member is a gym member with upstream identity, activity aggregates and
// the latest risk assessment.
type Member struct {
	ID             types.ID `json:"id"`
	PactoMemberID  string   `json:"pacto_member_id"`
	PactoMatricula string   `json:"pacto_matricula"`
	PactoAlunoID   string   `json:"pacto_aluno_id,omitempty"`
	PactoFichaID   string   `json:"pacto_ficha_id,omitempty"`

	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	EnrollmentDate types.Date      `json:"enrollment_date"`
	CurrentPlanID  types.ID        `json:"current_plan_id,omitempty"`
	PlanName       string          `json:"plan_name"`
	PlanValue      decimal.Decimal `json:"plan_value"`
	Status         Status          `json:"status"`

	// Activity aggregates, written by the sync job
	LastCheckin          *time.Time `json:"last_checkin"`
	DaysSinceLastCheckin *int       `json:"days_since_last_checkin"`
	CheckinsThisMonth    int        `json:"checkins_this_month"`
	AverageCheckins      float64    `json:"average_checkins_per_month"`

	// Risk assessment, written by the risk scorer
	RiskScore    int        `json:"risk_score"`
	RiskLevel    RiskLevel  `json:"risk_level"`
	RiskReasons  []string   `json:"risk_reasons"`
	RiskScoredAt *time.Time `json:"risk_scored_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Checkin is one recorded visit
type Checkin struct {
	ID          types.ID   `json:"id"`
	MemberID    types.ID   `json:"member_id"`
	PactoAulaID string     `json:"pacto_aula_id"`
	Date        types.Date `json:"date"`
	Time        string     `json:"time"`
	Activity    string     `json:"activity"`
	Confirmed   bool       `json:"confirmed"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PlanChange types
const (
	ChangeDowngrade = "downgrade"
	ChangeUpgrade   = "upgrade"
)

// PlanChange records a plan switch. Rows are never modified.
type PlanChange struct {
	ID         types.ID         `json:"id"`
	MemberID   types.ID         `json:"member_id"`
	ChangeType string           `json:"change_type"`
	ChangeDate time.Time        `json:"change_date"`
	OldPlanID  types.ID         `json:"old_plan_id,omitempty"`
	NewPlanID  types.ID         `json:"new_plan_id,omitempty"`
	OldValue   *decimal.Decimal `json:"old_value,omitempty"`
	NewValue   *decimal.Decimal `json:"new_value,omitempty"`
}

// PauseActive is the status of a pause currently in effect
const PauseActive = "active"

// PauseRequest is a member's request to freeze the membership
type PauseRequest struct {
	ID        types.ID   `json:"id"`
	MemberID  types.ID   `json:"member_id"`
	Status    string     `json:"status"`
	StartDate types.Date `json:"start_date"`
	EndDate   types.Date `json:"end_date"`
	Reason    string     `json:"reason"`
}

// ListFilter narrows member listings
type ListFilter struct {
	Status    *Status
	RiskLevel *RiskLevel
	// Search matches name or email, case-insensitive
	Search string
	Limit  int
	Offset int
}

// RiskUpdate is the full set of risk fields replaced by one scoring pass
type RiskUpdate struct {
	Score    int
	Level    RiskLevel
	Reasons  []string
	ScoredAt time.Time
}

// RiskMetrics summarises the active member base for the dashboard
type RiskMetrics struct {
	TotalMembers            int     `json:"total_members"`
	LowRisk                 int     `json:"low_risk"`
	MediumRisk              int     `json:"medium_risk"`
	HighRisk                int     `json:"high_risk"`
	AverageCheckinsPerMonth float64 `json:"average_checkins_per_month"`
	RetentionRate           float64 `json:"retention_rate"`
}

// NewRiskMetrics derives the rates from raw counts. sumAverage is the sum of
// average_checkins_per_month over all active members.
func NewRiskMetrics(low, medium, high int, sumAverage float64) RiskMetrics {
	m := RiskMetrics{
		TotalMembers: low + medium + high,
		LowRisk:      low,
		MediumRisk:   medium,
		HighRisk:     high,
	}
	if m.TotalMembers > 0 {
		m.RetentionRate = round1(float64(m.TotalMembers-high) / float64(m.TotalMembers) * 100)
		m.AverageCheckinsPerMonth = round1(sumAverage / float64(m.TotalMembers))
	}
	return m
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
