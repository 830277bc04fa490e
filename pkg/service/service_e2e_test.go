package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reportpush/pkg/channel"
	"reportpush/pkg/config"

	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	return port
}

func fetchStatus(t *testing.T, url string) (int, StatusResponse) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		return 0, StatusResponse{}
	}
	defer resp.Body.Close()

	var status StatusResponse
	_ = json.NewDecoder(resp.Body).Decode(&status)

	return resp.StatusCode, status
}

func TestServiceEndToEnd(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	src := filepath.Join(dir, "src.png")
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o600))

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0o755))

	port := freePort(t)
	cfg := &config.Config{
		Serve: config.ServeConfig{Host: "127.0.0.1", Port: port},
		Tasks: []config.TaskConfig{{
			Name: "daily",
			Render: config.RenderConfig{
				Command:   []string{"cp", src, filepath.Join(outDir, "chart.png")},
				OutputDir: outDir,
			},
			Schedule: config.ScheduleConfig{Times: []string{"08:00"}, Target: "ops"},
		}},
	}

	notifier := &stubNotifier{name: "stub"}
	svc, err := NewService(cfg, []channel.Notifier{notifier}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- svc.Run(ctx)
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	require.Eventually(t, func() bool {
		code, _ := fetchStatus(t, baseURL+"/readyz")
		return code == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond, "service never became ready")

	require.NoError(t, svc.RunTask(ctx, "daily"))

	require.Eventually(t, func() bool {
		code, status := fetchStatus(t, baseURL+"/healthz")
		if code != http.StatusOK {
			return false
		}
		task := status.Tasks["daily"]
		return task.LastResult == "ok" && task.Deliveries == 1
	}, 5*time.Second, 50*time.Millisecond, "task state never reached ok")

	notifier.mu.Lock()
	images := notifier.images
	notifier.mu.Unlock()
	require.Equal(t, 1, images)

	cancel()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not shut down")
	}
}

func TestServiceReportsFailedRun(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)

	cfg := &config.Config{
		Serve: config.ServeConfig{Host: "127.0.0.1", Port: port},
		Tasks: []config.TaskConfig{{
			Name:     "broken",
			Render:   config.RenderConfig{Command: []string{"false"}, OutputDir: dir},
			Schedule: config.ScheduleConfig{Times: []string{"08:00"}},
		}},
	}

	notifier := &stubNotifier{name: "stub"}
	svc, err := NewService(cfg, []channel.Notifier{notifier}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = svc.Run(ctx) }()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		code, _ := fetchStatus(t, baseURL+"/readyz")
		return code == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	require.Error(t, svc.RunTask(ctx, "broken"))

	require.Eventually(t, func() bool {
		_, status := fetchStatus(t, baseURL+"/healthz")
		task := status.Tasks["broken"]
		return task.LastResult == "failed" && task.Stage == "render"
	}, 5*time.Second, 50*time.Millisecond, "failed run never surfaced in status")
}
