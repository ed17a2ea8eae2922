package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrettyHandler_PlainLine(t *testing.T) {
	var buf bytes.Buffer
	handler := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}).WithoutColor()
	log := slog.New(handler)

	log.With("identity_id", "1").WithGroup("session").Info("warning shown", "countdown", 60, "idle", 4*time.Minute)

	line := buf.String()
	assert.Contains(t, line, "INFO  warning shown")
	assert.Contains(t, line, "identity_id=1")
	assert.Contains(t, line, "session.countdown=60")
	assert.Contains(t, line, "session.idle=4m0s")
	assert.NotContains(t, line, "\033[")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("dropped")
	log.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "debug")

	log.Debug("hello", "k", "v")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
