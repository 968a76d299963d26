package syncjob

import (
	"time"

	"github.com/gym-retention/platform/internal/shared/batch"
	"github.com/gym-retention/platform/internal/shared/types"
)

// Type selects what a sync run pulls or recomputes
type Type string

const (
	TypeMembers  Type = "members"
	TypeCheckins Type = "checkins"
	TypeStats    Type = "stats"
)

func (t Type) Valid() bool {
	switch t {
	case TypeMembers, TypeCheckins, TypeStats:
		return true
	}
	return false
}

// Request starts a sync run
type Request struct {
	Type Type `json:"sync_type"`
	// Matricula is the upstream gym account; empty uses the configured default
	Matricula string `json:"matricula,omitempty"`
}

// Result reports one sync run
type Result struct {
	Success   bool            `json:"success"`
	SyncType  Type            `json:"sync_type"`
	Processed int             `json:"processed"`
	Message   string          `json:"message"`
	Failures  []batch.Failure `json:"failures,omitempty"`
}

// Log statuses
const (
	LogRunning = "running"
	LogSuccess = "success"
	LogError   = "error"
)

// Log is the audit row written for every sync run
type Log struct {
	ID               types.ID   `json:"id"`
	SyncType         Type       `json:"sync_type"`
	Status           string     `json:"status"`
	RecordsProcessed int        `json:"records_processed"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	DurationMS       int64      `json:"duration_ms"`
}
