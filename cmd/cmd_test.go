package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/download-simulator/internal/app"
	"github.com/JakeFAU/download-simulator/internal/config"
)

// fastConfig keeps every download to a handful of millisecond steps.
const fastConfig = `
logging:
  development: false
  level: error
simulation:
  total_min: 100
  total_max: 101
  chunk_min: 40
  chunk_max: 41
  delay_min: 1ms
  delay_max: 2ms
  seed: 7
telemetry:
  max_batch_wait: 10ms
`

// isolateMetrics points the telemetry collectors at a private registry.
func isolateMetrics(t *testing.T) {
	t.Helper()
	prev := metricsRegisterer
	metricsRegisterer = prometheus.NewRegistry()
	t.Cleanup(func() { metricsRegisterer = prev })
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fastConfig), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func testRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg, err := config.Load(writeConfig(t))
	require.NoError(t, err)
	return &Runtime{Config: cfg, Logger: zaptest.NewLogger(t)}
}

func TestRunPlainReportsEveryDownload(t *testing.T) {
	isolateMetrics(t)

	out, err := execute(t, "run", "--config", writeConfig(t), "--count", "3", "--plain", "--refresh", "5ms")
	require.NoError(t, err)

	require.Contains(t, out, app.Title)
	require.Contains(t, out, app.InitializingText)
	for id := 0; id < 3; id++ {
		require.Contains(t, out, fmt.Sprintf("http://somer.server/files/%d finished", id))
	}
	require.Contains(t, out, "3 downloads finished")
}

func TestRunRendersBars(t *testing.T) {
	isolateMetrics(t)

	out, err := execute(t, "run", "--config", writeConfig(t), "-n", "2", "--refresh", "5ms")
	require.NoError(t, err)
	require.Contains(t, out, "http://somer.server/files/1")
	require.Contains(t, out, " done")
	require.Contains(t, out, "2 downloads finished")
}

func TestRunRejectsCountAboveCommandBuffer(t *testing.T) {
	isolateMetrics(t)

	_, err := execute(t, "run", "--config", writeConfig(t), "--count", "33")
	require.ErrorContains(t, err, "--count must be between 1 and 32")

	_, err = execute(t, "run", "--config", writeConfig(t), "--count", "0")
	require.Error(t, err)
}

func TestRunTimesOut(t *testing.T) {
	isolateMetrics(t)

	path := filepath.Join(t.TempDir(), "slow.yaml")
	slow := strings.Replace(fastConfig, "delay_min: 1ms\n  delay_max: 2ms", "delay_min: 1h\n  delay_max: 2h", 1)
	require.NoError(t, os.WriteFile(path, []byte(slow), 0o600))

	_, err := execute(t, "run", "--config", path, "--timeout", "50ms", "--plain")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRootRejectsMissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
}

func TestResolveRuntimeWithoutPreRun(t *testing.T) {
	t.Parallel()

	_, err := resolveRuntime(context.Background())
	require.Error(t, err)
}

func TestServeHandlesDownloads(t *testing.T) {
	isolateMetrics(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + lis.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serve(ctx, testRuntime(t), lis) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/readyz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Post(base+"/v1/downloads", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/downloads")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Downloads []app.DownloadView `json:"downloads"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return len(body.Downloads) == 1 && body.Downloads[0].Finished
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestRendererPlainReportsOnce(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := newRenderer(&out, true)
	snap := []app.DownloadView{
		{ID: 0, URL: "http://somer.server/files/0", Progress: 104.5, Finished: true},
		{ID: 1, URL: "http://somer.server/files/1", Progress: 30},
	}
	r.draw(snap)
	r.draw(snap)

	require.Equal(t, "http://somer.server/files/0 finished (104.50%)\n", out.String())
}

func TestRendererRedrawsInPlace(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := newRenderer(&out, false)
	snap := []app.DownloadView{
		{ID: 0, URL: "http://somer.server/files/0", Progress: 25},
		{ID: 1, URL: "http://somer.server/files/1", Progress: 130, Finished: true},
	}
	r.draw(snap)
	require.NotContains(t, out.String(), "\x1b[2A")
	r.draw(snap)
	require.Contains(t, out.String(), "\x1b[2A")
	require.Contains(t, out.String(), " 130.00% done")
	require.Len(t, r.bars, 2)
}

func TestAllFinished(t *testing.T) {
	t.Parallel()

	require.False(t, allFinished(nil))
	require.False(t, allFinished([]app.DownloadView{{Finished: true}, {}}))
	require.True(t, allFinished([]app.DownloadView{{Finished: true}, {Finished: true}}))
}
