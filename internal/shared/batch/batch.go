package batch

import (
	"context"
	"net/http"
	"sync"

	"github.com/gym-retention/platform/internal/shared/errors"
)

// Failure is one item a batch could not process
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Guard allows only one run of a batch kind at a time within the process
type Guard struct {
	name string
	mu   sync.Mutex
}

// NewGuard creates a guard for the named batch
func NewGuard(name string) *Guard {
	return &Guard{name: name}
}

// Run executes fn unless another run holds the guard, in which case it
// returns a conflict error without waiting.
func (g *Guard) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.mu.TryLock() {
		return errors.Conflict(g.name + " is already running")
	}
	defer g.mu.Unlock()

	return fn(ctx)
}

// ErrorResponse maps a batch-level error to the status and body returned to
// HTTP callers. Overlapping runs keep their conflict status, anything else is
// reported as a failed batch.
func ErrorResponse(err error) (int, map[string]any) {
	status := http.StatusInternalServerError
	message := err.Error()
	if appErr, ok := errors.As(err); ok {
		message = appErr.Message
		if appErr.HTTPStatus == http.StatusConflict {
			status = http.StatusConflict
		}
	}
	return status, map[string]any{"success": false, "error": message}
}
