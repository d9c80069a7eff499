package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/config"
)

func TestRunServesUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Scenario.Enemies = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{Version: "test", Output: io.Discard, Ready: func(addr string) { ready <- addr }})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not become ready")
	}
	base := "http://" + addr

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/commands", "application/json", strings.NewReader(`{"type":"setTimeScale","scale":0.5}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var payload struct {
			Status struct {
				Tick      uint64  `json:"tick"`
				TimeScale float64 `json:"timeScale"`
			} `json:"status"`
			Scene struct {
				Entities int `json:"entities"`
			} `json:"scene"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return false
		}
		return payload.Status.Tick > 0 && payload.Status.TimeScale == 0.5 && payload.Scene.Entities >= 3
	}, 5*time.Second, 20*time.Millisecond)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "rewind_ticks_recorded_total")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestRunRejectsBadListenAddr(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddr = "not-an-address"
	err := Run(context.Background(), cfg, Options{Output: io.Discard})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to listen")
}
