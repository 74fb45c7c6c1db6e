package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"debug level", LevelDebug, slog.LevelDebug},
		{"info level", LevelInfo, slog.LevelInfo},
		{"warn level", LevelWarn, slog.LevelWarn},
		{"error level", LevelError, slog.LevelError},
		{"upper case", LogLevel("DEBUG"), slog.LevelDebug},
		{"unknown falls back to info", LogLevel("verbose"), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.level))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, &buf)

	logger.WithRunID("run-1").InfoStep("target created", "create_target", "target_id", "T1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "target created", entry["msg"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "create_target", entry["step"])
	assert.Equal(t, "T1", entry["target_id"])
}

func TestNewWithWriterFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelWarn, Format: FormatText}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestErrorHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf)

	logger.ErrorEngine("get_version failed", errors.New("socket closed"))
	logger.ErrorStep("step failed", "start_task", errors.New("no report id"))
	logger.WithComponent("scheduler").Info("tick")

	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "socket closed")
	assert.Contains(t, out, "step=start_task")
	assert.Contains(t, out, "component=scheduler")
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reporter.log")

	logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: path})
	require.NoError(t, err)

	logger.Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestOpenOutputRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reporter.log")
	cfg := Config{
		Output: path,
		Rotation: RotationConfig{
			Enabled:    true,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}

	w, err := openOutput(cfg)
	require.NoError(t, err)

	rotating, ok := w.(*lumberjack.Logger)
	require.True(t, ok, "rotation should use a lumberjack writer")
	assert.Equal(t, path, rotating.Filename)
	assert.Equal(t, 10, rotating.MaxSize)
	assert.Equal(t, 3, rotating.MaxBackups)
	assert.True(t, rotating.Compress)
	require.NoError(t, rotating.Close())
}

func TestSetDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelDebug}, &buf))

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	for _, msg := range []string{"debug message", "info message", "warn message", "error message"} {
		assert.Contains(t, out, msg)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	require.NotNil(t, logger)
	logger.Info("nothing happens")
	assert.Equal(t, LevelInfo, logger.Config().Level)
}
