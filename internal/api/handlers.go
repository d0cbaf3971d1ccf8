package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tagomatech/ETL/internal/scheduler"
	"github.com/tagomatech/ETL/pkg/database"
	"github.com/tagomatech/ETL/pkg/logger"
)

// DBChecker reports database health
type DBChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// JobSource exposes scheduler statistics and run history
type JobSource interface {
	GetJobStats() map[string]scheduler.JobStats
	GetJobHistory(jobName string) (*scheduler.JobHistory, error)
}

var (
	_ DBChecker = (*database.DB)(nil)
	_ JobSource = (*scheduler.Scheduler)(nil)
)

const (
	healthTimeout       = 3 * time.Second
	defaultHistoryLimit = 20
)

type handlers struct {
	deps   Deps
	logger *logger.Logger
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string                 `json:"status"` // ok, degraded
	Service     string                 `json:"service"`
	Database    *database.HealthStatus `json:"database,omitempty"`
	Jobs        int                    `json:"jobs"`
	FailingJobs []string               `json:"failing_jobs,omitempty"`
}

// health is degraded (503) when the database is unreachable; failing jobs are reported, not fatal
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Service: "futures-scheduler"}
	code := http.StatusOK

	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status, err := h.deps.DB.HealthCheck(ctx)
		resp.Database = status
		if err != nil {
			h.logger.WithError(err).Warn("Database health check failed")
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	if h.deps.Jobs != nil {
		stats := h.deps.Jobs.GetJobStats()
		resp.Jobs = len(stats)
		for name, st := range stats {
			if st.LastFailure != nil && (st.LastSuccess == nil || st.LastFailure.After(*st.LastSuccess)) {
				resp.FailingJobs = append(resp.FailingJobs, name)
			}
		}
		sort.Strings(resp.FailingJobs)
	}

	writeJSON(w, code, resp)
}

// listJobs returns every job's stats ordered by name
func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Jobs == nil {
		writeJSON(w, http.StatusOK, []scheduler.JobStats{})
		return
	}

	stats := h.deps.Jobs.GetJobStats()
	out := make([]scheduler.JobStats, 0, len(stats))
	for _, st := range stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })
	writeJSON(w, http.StatusOK, out)
}

// jobHistory returns the latest results of one job (?limit=N, default 20)
func (h *handlers) jobHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if h.deps.Jobs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job " + name + " not found"})
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	history, err := h.deps.Jobs.GetJobHistory(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, history.GetLatestResults(limit))
}
