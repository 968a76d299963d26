package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gym-retention/platform/internal/shared/errors"
)

func TestGuardRejectsOverlap(t *testing.T) {
	g := NewGuard("risk scoring")
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- g.Run(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := g.Run(context.Background(), func(context.Context) error {
		t.Fatal("overlapping run must not execute")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.Contains(t, err.Error(), "risk scoring is already running")

	close(release)
	require.NoError(t, <-done)

	// released guard accepts the next run
	ran := false
	require.NoError(t, g.Run(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestGuardPropagatesError(t *testing.T) {
	g := NewGuard("sync")
	err := g.Run(context.Background(), func(context.Context) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"conflict", errors.Conflict("sync is already running"), 409, "sync is already running"},
		{"configuration", errors.Configuration("risk_weights is not configured"), 500, "risk_weights is not configured"},
		{"plain", assert.AnError, 500, assert.AnError.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ErrorResponse(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}
