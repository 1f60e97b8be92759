package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLast(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	dl.Debug("debug message", "key1", "value1", "key2", 42)
	entry := decodeLast(t, &buf)
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "debug message", entry["msg"])
	assert.Equal(t, "value1", entry["key1"])
	assert.Equal(t, float64(42), entry["key2"])
	assert.Equal(t, "dispatcher", entry["component"])

	dl.Info("info message", "status", "ok")
	entry = decodeLast(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "ok", entry["status"])

	dl.Error("error message", "error", "boom")
	entry = decodeLast(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestDispatcherLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dl.Debug("hidden")
	assert.Empty(t, buf.String())
}
