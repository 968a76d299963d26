package action

import (
	"strings"
	"time"

	"github.com/gym-retention/platform/internal/shared/errors"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Type is the action tier, ordered by severity N1 < N2 < N3
type Type string

const (
	TypeN1 Type = "N1"
	TypeN2 Type = "N2"
	TypeN3 Type = "N3"
)

// Level returns the severity of the tier, 0 for unknown values
func (t Type) Level() int {
	switch t {
	case TypeN1:
		return 1
	case TypeN2:
		return 2
	case TypeN3:
		return 3
	}
	return 0
}

func (t Type) Valid() bool {
	return t.Level() > 0
}

// Priority derived 1:1 from the tier
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priority returns the fixed priority for the tier
func (t Type) Priority() Priority {
	switch t {
	case TypeN3:
		return PriorityHigh
	case TypeN2:
		return PriorityMedium
	}
	return PriorityLow
}

// DueIn returns how many days staff have to act on the tier
func (t Type) DueIn() int {
	switch t {
	case TypeN3:
		return 1
	case TypeN2:
		return 2
	}
	return 3
}

// Status of an action item
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether the action still awaits staff
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// ActionItem is a follow-up task for staff. Items are never deleted, only
// moved through their status lifecycle.
type ActionItem struct {
	ID          types.ID   `json:"id"`
	MemberID    types.ID   `json:"member_id"`
	MemberName  string     `json:"member_name,omitempty"`
	Type        Type       `json:"type"`
	Priority    Priority   `json:"priority"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     types.Date `json:"due_date"`
	Status      Status     `json:"status"`
	Result      *string    `json:"result,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Start moves a pending action to in-progress
func (a *ActionItem) Start() error {
	if a.Status != StatusPending {
		return invalidTransition(a.Status, StatusInProgress)
	}
	a.Status = StatusInProgress
	return nil
}

// Complete closes an open action with the outcome of the contact
func (a *ActionItem) Complete(result string, at time.Time) error {
	if !a.Status.Open() {
		return invalidTransition(a.Status, StatusCompleted)
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return errors.Validation("validation failed", map[string]string{
			"result": "result is required to complete an action",
		})
	}
	a.Status = StatusCompleted
	a.Result = &result
	a.CompletedAt = &at
	return nil
}

// Cancel closes an open action without a result
func (a *ActionItem) Cancel() error {
	if !a.Status.Open() {
		return invalidTransition(a.Status, StatusCancelled)
	}
	a.Status = StatusCancelled
	return nil
}

// Assign hands an open action to a staff user
func (a *ActionItem) Assign(userID string) error {
	if !a.Status.Open() {
		return errors.Conflict("cannot assign a " + string(a.Status) + " action")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.Validation("validation failed", map[string]string{
			"assigned_to": "assigned_to is required",
		})
	}
	a.AssignedTo = userID
	return nil
}

func invalidTransition(from, to Status) error {
	appErr := errors.Conflict("cannot move action from " + string(from) + " to " + string(to))
	appErr.Details = map[string]string{"from": string(from), "to": string(to)}
	return appErr
}

// ListFilter narrows action listings
type ListFilter struct {
	Status *Status
	Type   *Type
	Limit  int
	Offset int
}
