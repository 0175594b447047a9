package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(&Config{
		Level:  "info",
		Format: "json",
		writer: &buf,
	})
	require.NoError(t, err)

	log.Info("job scheduled", slog.String("job_id", "job-1"))

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "job scheduled", record["msg"])
	assert.Equal(t, "job-1", record["job_id"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(&Config{
		Level:  "warn",
		Format: "json",
		writer: &buf,
	})
	require.NoError(t, err)

	log.Info("should be dropped")
	assert.Empty(t, buf.String())

	log.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNewDefault(t *testing.T) {
	log := NewDefault()
	require.NotNil(t, log)
	require.NotNil(t, log.Logger)
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(&Config{
		Level:  "info",
		Format: "json",
		writer: &buf,
	})
	require.NoError(t, err)

	child := log.With("platform", "FACEBOOK")
	child.Info("publishing")

	assert.Contains(t, buf.String(), `"platform":"FACEBOOK"`)
}
