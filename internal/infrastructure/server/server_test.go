package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/agentlens/agentlens/internal/infrastructure/config"
)

func TestNewServerHonorsConfiguredLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Logging.Level = "warn"

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	defer srv.Close()

	assert.Equal(t, zapcore.WarnLevel, srv.logger.Level())
}

func TestNewServerRejectsInvalidLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Logging.Level = "shouty"

	_, err := NewServer(cfg)
	require.Error(t, err)
}
