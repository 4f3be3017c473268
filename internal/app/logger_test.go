package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("quiet")
	assert.Zero(t, buf.Len())

	logger.Warn("cache fallback", slog.String("key", "clients"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "clients", line["key"])
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	for _, cfg := range []*Config{nil, {LogLevel: "bogus"}, {}} {
		logger := newLogger(cfg, &buf)
		assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
		assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	}

	logger := newLogger(&Config{LogLevel: "debug"}, &buf)
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))
}
