package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_STATE_HOME", "")
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", tmpDir)
		t.Setenv("LOCALAPPDATA", filepath.Join(tmpDir, "AppData", "Local"))
	}
	return tmpDir
}

func TestLogPath(t *testing.T) {
	home := setHome(t)
	logPath, err := LogPath("wirebench")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(logPath))

	switch runtime.GOOS {
	case "darwin":
		assert.Equal(t, filepath.Join(home, "Library", "Logs", "wirebench", "wirebench.log"), logPath)
	case "linux":
		assert.Equal(t, filepath.Join(home, ".local", "state", "wirebench", "wirebench.log"), logPath)

		state := filepath.Join(home, "state")
		t.Setenv("XDG_STATE_HOME", state)
		logPath, err = LogPath("wirebench")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(state, "wirebench", "wirebench.log"), logPath)
	}
}

func TestInitLogger(t *testing.T) {
	setHome(t)

	for _, debug := range []bool{false, true} {
		logger, closer, err := InitLogger("wirebench-test", debug)
		require.NoError(t, err)

		logger.Info("test message", slog.String("key", "value"))
		logger.Debug("debug message")
		require.NoError(t, closer.Close())
	}

	logPath, err := LogPath("wirebench-test")
	require.NoError(t, err)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// info run writes one line, debug run writes two
	require.Len(t, lines, 3)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "test message", rec["msg"])
	assert.Equal(t, "value", rec["key"])
}

func TestRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")
	r := rotation{maxSize: 16, backups: 2}

	require.NoError(t, r.apply(logPath), "missing file is not rotated")

	require.NoError(t, os.WriteFile(logPath, []byte("small"), 0o644))
	require.NoError(t, r.apply(logPath))
	assert.NoFileExists(t, logPath+".1")

	for i := range 4 {
		body := bytes.Repeat([]byte{byte('a' + i)}, 16)
		require.NoError(t, os.WriteFile(logPath, body, 0o644))
		require.NoError(t, r.apply(logPath))
		assert.NoFileExists(t, logPath)
	}
	newest, err := os.ReadFile(logPath + ".1")
	require.NoError(t, err)
	assert.Equal(t, byte('d'), newest[0])
	older, err := os.ReadFile(logPath + ".2")
	require.NoError(t, err)
	assert.Equal(t, byte('c'), older[0])
	assert.NoFileExists(t, logPath+".3")
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, false)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("tab", "t1"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown tab=t1")

	buf.Reset()
	NewConsoleLogger(&buf, true).Debug("verbose")
	assert.Contains(t, buf.String(), "msg=verbose")
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	require.NotNil(t, logger)
	logger.Error("test error")
	assert.False(t, logger.Enabled(t.Context(), slog.LevelError))
}
