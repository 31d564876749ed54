package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("booking", "created")
	l.LogPayment("CONFIRM", "pi_123", "booking confirmed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "BOOKING", entry.Category)
	assert.Equal(t, "created", entry.Message)
	assert.Equal(t, "logger_test.go", entry.File)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "PAYMENT", entry.Category)
	assert.Equal(t, "[CONFIRM] pi_123 - booking confirmed", entry.Message)
}

func TestSetLevel_FiltersBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetLevel(WARN)

	l.Debug("SWEEPER", "tick")
	l.Info("SWEEPER", "tick")
	l.Warn("SWEEPER", "slow sweep")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "slow sweep")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warn "))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("verbose"))
	assert.Equal(t, "INFO", LogLevel(42).String())
}

func TestNewLogger_WritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOG_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")

	l := NewLogger()
	l.Info("BOOKING", "filtered")
	l.Error("BOOKING", "kept")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "booking-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered")
	assert.Contains(t, string(data), "kept")
}
