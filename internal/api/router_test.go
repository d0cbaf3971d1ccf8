package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagomatech/ETL/internal/scheduler"
	"github.com/tagomatech/ETL/pkg/database"
	"github.com/tagomatech/ETL/pkg/logger"
	"github.com/tagomatech/ETL/pkg/metrics"
)

type fakeDB struct {
	err error
}

func (f fakeDB) HealthCheck(ctx context.Context) (*database.HealthStatus, error) {
	status := &database.HealthStatus{Healthy: f.err == nil, Timestamp: time.Now()}
	if f.err != nil {
		status.Error = f.err.Error()
	}
	return status, f.err
}

type fakeJobs struct {
	stats   map[string]scheduler.JobStats
	history map[string]*scheduler.JobHistory
}

func (f *fakeJobs) GetJobStats() map[string]scheduler.JobStats { return f.stats }

func (f *fakeJobs) GetJobHistory(name string) (*scheduler.JobHistory, error) {
	h, ok := f.history[name]
	if !ok {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return h, nil
}

func newFakeJobs() *fakeJobs {
	t0 := time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	kc := &scheduler.JobHistory{}
	for i := 0; i < 3; i++ {
		kc.AddResult(scheduler.JobResult{JobName: "continuous_build_kc", StartTime: t0.Add(time.Duration(i) * time.Hour), Success: true, Attempts: 1})
	}

	return &fakeJobs{
		stats: map[string]scheduler.JobStats{
			"continuous_build_kc": {JobName: "continuous_build_kc", Schedule: "0 30 18 * * 1-5", LastSuccess: &t1},
			"universe_refresh":    {JobName: "universe_refresh", Schedule: "0 0 6 * * 1-5", LastSuccess: &t0, LastFailure: &t1},
		},
		history: map[string]*scheduler.JobHistory{"continuous_build_kc": kc},
	}
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		deps       Deps
		wantCode   int
		wantStatus string
		wantFail   []string
	}{
		{"no collaborators", Deps{}, http.StatusOK, "ok", nil},
		{"healthy database", Deps{DB: fakeDB{}}, http.StatusOK, "ok", nil},
		{"database down", Deps{DB: fakeDB{err: errors.New("connection refused")}}, http.StatusServiceUnavailable, "degraded", nil},
		{"failing job reported", Deps{DB: fakeDB{}, Jobs: newFakeJobs()}, http.StatusOK, "ok", []string{"universe_refresh"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, NewRouter(tt.deps, nil), http.MethodGet, "/health")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantFail, resp.FailingJobs)
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.ObserveFetch("barchart", metrics.OutcomeOK, 10*time.Millisecond)
	router := NewRouter(Deps{Metrics: rec.Handler()}, nil)

	resp := get(t, router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `futures_fetch_requests_total{outcome="ok",source="barchart"} 1`)

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, router, http.MethodPost, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, NewRouter(Deps{}, nil), http.MethodGet, "/metrics").Code)
}

func TestListJobs(t *testing.T) {
	router := NewRouter(Deps{Jobs: newFakeJobs()}, nil)

	rec := get(t, router, http.MethodGet, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats []scheduler.JobStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, "continuous_build_kc", stats[0].JobName)
	assert.Equal(t, "universe_refresh", stats[1].JobName)

	rec = get(t, NewRouter(Deps{}, nil), http.MethodGet, "/api/jobs")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestJobHistory(t *testing.T) {
	router := NewRouter(Deps{Jobs: newFakeJobs()}, nil)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantLen  int
	}{
		{"default limit", "/api/jobs/continuous_build_kc/history", http.StatusOK, 3},
		{"limited", "/api/jobs/continuous_build_kc/history?limit=2", http.StatusOK, 2},
		{"bad limit", "/api/jobs/continuous_build_kc/history?limit=0", http.StatusBadRequest, 0},
		{"unknown job", "/api/jobs/nope/history", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, http.MethodGet, tt.path)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var results []scheduler.JobResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
			assert.Len(t, results, tt.wantLen)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "error")

	h := recoveryMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := get(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
	assert.Contains(t, buf.String(), "Panic recovered")
	assert.Contains(t, buf.String(), "boom")
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	router := NewRouter(Deps{}, logger.NewWithWriter(&buf, "debug"))

	get(t, router, http.MethodGet, "/api/jobs/none/history")

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "HTTP request", entry["message"])
	assert.Equal(t, "/api/jobs/none/history", entry["path"])
	assert.Equal(t, 404.0, entry["status"])
	assert.Equal(t, "api", entry["module"])
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewRouter(Deps{}, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
