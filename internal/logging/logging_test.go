package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maxvaer/w3ccheck/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_ConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.LogOptions{Level: "info", Format: "console"}, zapcore.AddSync(&buf), true)

	l.Debug("hidden")
	l.Info("Page validated", zap.String("url", "http://site.test/"))
	require.NoError(t, l.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "w3ccheck.")
	assert.Contains(t, out, "Page validated")
	assert.Contains(t, out, `"url": "http://site.test/"`)
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.LogOptions{Level: "debug", Format: "json"}, zapcore.AddSync(&buf), false)
	l.Warn("Validator request failed", zap.Int("status", 503))
	require.NoError(t, l.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "Validator request failed", entry["msg"])
	assert.Equal(t, "w3ccheck", entry["logger"])
	assert.EqualValues(t, 503, entry["status"])
}

func TestNew_BadLevelFallsBackToWarn(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.LogOptions{Level: "chatty"}, zapcore.AddSync(&buf), true)
	l.Info("dropped")
	l.Warn("kept")
	require.NoError(t, l.Sync())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_TeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w3ccheck.log")
	var buf bytes.Buffer
	l := New(config.LogOptions{Level: "info", Format: "console", File: path, MaxSize: 1}, zapcore.AddSync(&buf), true)
	l.Info("written twice")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasPrefix(line, "{"), "file output should be JSON: %s", line)
	assert.Contains(t, line, "written twice")
	assert.Contains(t, buf.String(), "written twice")
}
