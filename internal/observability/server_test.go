package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	var readyErr error
	srv := NewServer("127.0.0.1:0", quietLogger(), func(context.Context) error { return readyErr })
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz/liveness").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz/readiness").Code)

	readyErr = errors.New("postgres unreachable")
	rec := get(t, h, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready\n", rec.Body.String())
}

func TestMetricsIncludesExtraCollectors(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "stagepass_test_total", Help: "Test counter."})
	counter.Add(3)

	srv := NewServer("127.0.0.1:0", quietLogger(), nil, counter)
	rec := get(t, srv.Handler(), "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stagepass_test_total 3")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartStop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", quietLogger(), nil)

	errCh, err := srv.Start()
	require.NoError(t, err)
	assert.NotEmpty(t, srv.Addr())

	_, err = srv.Start()
	assert.Error(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
	_, open := <-errCh
	assert.False(t, open)
}
