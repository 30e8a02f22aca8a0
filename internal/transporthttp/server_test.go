package transporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
)

type fakeOrchestrator struct {
	status Status
	err    error
}

func (f *fakeOrchestrator) StatusAsync(ctx context.Context) (Status, error) {
	return f.status, f.err
}

type fakeLogger struct{}

func (fakeLogger) Info(msg string, args ...any)  {}
func (fakeLogger) Error(msg string, args ...any) {}

func TestHealthzReturnsOK(t *testing.T) {
	srv := New(Config{}, &fakeOrchestrator{}, events.New(4), prometheus.NewRegistry(), fakeLogger{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReturnsOrchestratorStatus(t *testing.T) {
	srv := New(Config{}, &fakeOrchestrator{status: Status{Running: true, QueueLength: 3, ConfidenceStatus: "healthy"}}, events.New(4), nil, fakeLogger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Running)
	assert.Equal(t, 3, got.QueueLength)
}

func TestSSEStreamsPublishedEvents(t *testing.T) {
	bus := events.New(4)
	srv := New(Config{}, &fakeOrchestrator{}, bus, nil, fakeLogger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 500*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.router.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.NewProjectStarted(&core.Project{ID: core.NewProjectID(), Name: "demo"}))

	<-done
	body := rec.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: project_started")
	assert.Contains(t, body, "demo")
}
