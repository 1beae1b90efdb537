package app

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"
	"watchtower/internal/config"
	"watchtower/internal/logger"
	"watchtower/internal/service/camera"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.LogDirectory = dir
	cfg.ModelPath = filepath.Join(dir, "missing.pb")
	cfg.ConfigPath = filepath.Join(dir, "missing.pbtxt")
	cfg.OpenAttempts = 1
	cfg.OpenBackoff = time.Millisecond
	return cfg
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRunFailsWhenCameraUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.CameraURL = filepath.Join(t.TempDir(), "missing.mp4")

	a, err := NewApp(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Nil(t, a.net, "missing model falls back to no object detection")

	err = a.Run(context.Background())
	assert.ErrorIs(t, err, camera.ErrSourceUnavailable)
}

func TestRunServesAndStopsCleanly(t *testing.T) {
	cfg := testConfig(t)
	cfg.CameraURL = "udp://127.0.0.1:0"

	a, err := NewApp(cfg, logger.NewNop())
	require.NoError(t, err)
	a.server.Addr = freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + a.server.Addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + a.server.Addr + "/api/frame")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}
