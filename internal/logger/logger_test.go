package logger

import (
	"os"
	"path/filepath"
	"testing"
	"watchtower/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	cfg := config.Default()
	cfg.LogDirectory = filepath.Join(t.TempDir(), "logs")
	cfg.LogLevel = "debug"

	l, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, cfg.LogDirectory
}

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestLogger_LevelsGoToTheirFiles(t *testing.T) {
	l, dir := newTestLogger(t)

	l.Info("frame %d processed", 1)
	l.Warning("queue %s full", "alerts")
	l.Error("dispatch failed: %v", "timeout")
	l.Debug("debug only")
	require.NoError(t, l.Close())

	info := readLog(t, dir, InfoFile)
	warning := readLog(t, dir, WarningFile)
	errorLog := readLog(t, dir, ErrorFile)

	assert.Contains(t, info, "frame 1 processed")
	assert.NotContains(t, info, "queue alerts full")
	assert.NotContains(t, info, "debug only")
	assert.Contains(t, warning, "queue alerts full")
	assert.Contains(t, errorLog, "dispatch failed: timeout")
	assert.NotContains(t, errorLog, "frame 1 processed")
}

func TestLogger_WithAddsContext(t *testing.T) {
	l, dir := newTestLogger(t)

	l.With("camera", "gate").Info("opened")
	require.NoError(t, l.Close())

	info := readLog(t, dir, InfoFile)
	assert.Contains(t, info, "opened")
	assert.Contains(t, info, "gate")
}

func TestLogger_CleanLogs(t *testing.T) {
	l, dir := newTestLogger(t)

	l.Error("something broke")
	require.NoError(t, l.CleanLogs(ErrorFile))
	assert.Empty(t, readLog(t, dir, ErrorFile))
}

func TestLogger_NopIsSafe(t *testing.T) {
	l := NewNop()
	l.Info("ignored %d", 1)
	l.With("k", "v").Error("ignored")
	assert.NoError(t, l.CleanLogs(InfoFile))
	assert.NoError(t, l.Close())
}
