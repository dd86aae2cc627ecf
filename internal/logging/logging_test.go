package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestConfigureWriter_JSON(t *testing.T) {
	t.Setenv(EnvLevel, "")
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureWriter(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "document_id", "a")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "a", rec["document_id"])

	SetLevel(slog.LevelDebug)
	assert.Equal(t, slog.LevelDebug, Level())
}

func TestConfigureWriter_EnvOverride(t *testing.T) {
	t.Setenv(EnvLevel, "DEBUG")
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	ConfigureWriter(&buf, "error", "text")
	slog.Debug("visible")

	assert.Contains(t, buf.String(), "msg=visible")
	assert.Equal(t, slog.LevelDebug, Level())
}
