package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsd-scraper/internal/infra/worker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) (int, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.Bytes()
}

func TestHealthServer_Liveness(t *testing.T) {
	h := worker.NewHealthServer(":0", quietLogger())

	code, body := get(t, h.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestHealthServer_Readiness(t *testing.T) {
	h := worker.NewHealthServer(":0", quietLogger())

	code, body := get(t, h.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"not ready"}`, string(body))

	h.SetReady(true)
	code, _ = get(t, h.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, code)

	h.SetReady(false)
	code, _ = get(t, h.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHealthServer_Jobs(t *testing.T) {
	h := worker.NewHealthServer(":0", quietLogger())
	ok := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	h.RecordRun(worker.JobStatus{Job: "ror-locations", LastRun: ok, LastSuccess: ok, Selected: 10, Completed: 10})
	h.RecordRun(worker.JobStatus{Job: "github-stats", LastRun: ok, LastSuccess: ok, Selected: 5, Completed: 5, Failed: 2})
	h.RecordRun(worker.JobStatus{Job: "ror-locations", LastRun: ok.Add(time.Hour), Error: "store unavailable"})

	code, body := get(t, h.Handler(), "/health/jobs")
	require.Equal(t, http.StatusOK, code)

	var got []worker.JobStatus
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "github-stats", got[0].Job)
	assert.Equal(t, 2, got[0].Failed)
	assert.Equal(t, "ror-locations", got[1].Job)
	assert.Equal(t, "store unavailable", got[1].Error)
	assert.True(t, got[1].LastSuccess.Equal(ok), "a failed run keeps the previous success")
}

func TestHealthServer_MethodNotAllowed(t *testing.T) {
	h := worker.NewHealthServer(":0", quietLogger())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthServer_StartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	h := worker.NewHealthServer(addr, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, http.ErrServerClosed))
	case <-time.After(6 * time.Second):
		t.Fatal("health server did not stop")
	}
}
