package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFromString(t *testing.T) {
	tests := []struct {
		name      string
		levelStr  string
		wantLevel Level
	}{
		{"debug", "debug", LevelDebug},
		{"info", "info", LevelInfo},
		{"warn", "warn", LevelWarn},
		{"error", "error", LevelError},
		{"DEBUG uppercase", "DEBUG", LevelDebug},
		{"unknown defaults to info", "invalid", LevelInfo},
		{"empty defaults to info", "", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewFromString(tt.levelStr, &bytes.Buffer{})
			assert.Equal(t, tt.wantLevel, logger.GetLevel())
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestLevelFiltering(t *testing.T) {
	output := &bytes.Buffer{}
	logger := New(LevelWarn, output)

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	assert.Empty(t, output.String())

	logger.Warn("no readable text in %s", "upload.png")
	assert.Contains(t, output.String(), "level=WARN")
	assert.Contains(t, output.String(), "no readable text in upload.png")

	output.Reset()
	logger.Error("boom")
	assert.Contains(t, output.String(), "level=ERROR")
}

func TestSetLevel(t *testing.T) {
	output := &bytes.Buffer{}
	logger := New(LevelError, output)

	logger.Info("hidden")
	assert.Empty(t, output.String())

	logger.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.GetLevel())

	logger.Debug("visible")
	assert.Contains(t, output.String(), "visible")
}

func TestPrintLogsAtDebug(t *testing.T) {
	output := &bytes.Buffer{}
	logger := New(LevelDebug, output)

	logger.Print("GET / 200 ", "1ms\n")
	assert.Contains(t, output.String(), "level=DEBUG")
	assert.Contains(t, output.String(), "GET / 200 1ms")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() { logger.Info("ignored") })
}
