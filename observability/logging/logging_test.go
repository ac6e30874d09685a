package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestNewRenamesKeysAndFilters(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger, err := New(Options{Service: "lending-sim", Environment: "test", Level: "warn", Console: &buf})
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", Secret("owner_secret", "hunter2"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	require.Equal(t, "kept", line["message"])
	require.Equal(t, "WARN", line["severity"])
	require.Equal(t, "lending-sim", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, Redacted, line["owner_secret"])
	require.Contains(t, line, "timestamp")
}

func TestNewWritesRotatedFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "lending.log")
	var console bytes.Buffer
	logger, err := New(Options{Service: "lending-sim", Console: &console, File: FileOptions{Path: path, MaxSizeMB: 1}})
	require.NoError(t, err)
	logger.Info("persisted")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "persisted")
	require.Contains(t, console.String(), "persisted")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)

	_, err = ParseLevel("chatty")
	require.ErrorContains(t, err, "log level")
}

func TestHeadersMasksCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("telemetry", Headers("headers", map[string]string{
		"Authorization": "Bearer abc",
		"x-tenant":      "lending",
	}))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	headers := lines[0]["headers"].(map[string]any)
	require.Equal(t, Redacted, headers["Authorization"])
	require.Equal(t, "lending", headers["x-tenant"])
	require.False(t, IsSensitive("x-tenant"))
}
