package logger

import (
	"testing"

	"github.com/gym-retention/platform/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRespectsLevel(t *testing.T) {
	log, err := New(config.ServerConfig{Env: "development"}, config.LogConfig{Level: "warn"})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.ServerConfig{Env: "production"}, config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
