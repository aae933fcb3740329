package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// CheckFunc checks one dependency.
type CheckFunc func(ctx context.Context) error

type checkResult struct {
	OK        bool    `json:"ok"`
	Error     string  `json:"error,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

// HealthStatus tracks dependency checks and the last pipeline run.
type HealthStatus struct {
	mu sync.RWMutex

	checks  map[string]CheckFunc
	results map[string]checkResult

	lastRunAt     time.Time
	lastRunStatus string
	lastCheckAt   time.Time
	startedAt     time.Time
	now           func() time.Time
}

// NewHealthStatus returns a status with no registered checks.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		checks:    make(map[string]CheckFunc),
		results:   make(map[string]checkResult),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Register adds a named dependency check. Unchecked dependencies report
// unhealthy until the first check.
func (h *HealthStatus) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	h.checks[name] = fn
	h.results[name] = checkResult{Error: "not checked yet"}
	h.mu.Unlock()
}

// SetLastRun records the outcome of the latest batch.
func (h *HealthStatus) SetLastRun(at time.Time, status string) {
	h.mu.Lock()
	h.lastRunAt = at
	h.lastRunStatus = status
	h.mu.Unlock()
}

// CheckAll runs every registered check.
func (h *HealthStatus) CheckAll(ctx context.Context) {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()

	results := make(map[string]checkResult, len(checks))
	for name, fn := range checks {
		start := h.now()
		err := fn(ctx)
		r := checkResult{OK: err == nil, LatencyMs: float64(h.now().Sub(start).Microseconds()) / 1000.0}
		if err != nil {
			r.Error = err.Error()
		}
		results[name] = r
	}

	h.mu.Lock()
	for k, v := range results {
		h.results[k] = v
	}
	h.lastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker checks dependencies every interval until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		check := func() {
			checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			h.CheckAll(checkCtx)
			cancel()
		}
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles /healthz: 200 when every check passed, else 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.results))
	failed := 0
	for name, res := range h.results {
		names = append(names, name)
		if !res.OK {
			failed++
		}
	}
	sort.Strings(names)

	status, code := "healthy", http.StatusOK
	switch {
	case failed > 0 && failed == len(names):
		status, code = "unhealthy", http.StatusServiceUnavailable
	case failed > 0:
		status, code = "degraded", http.StatusServiceUnavailable
	}

	body := struct {
		Status        string                 `json:"status"`
		Uptime        string                 `json:"uptime"`
		Checks        map[string]checkResult `json:"checks"`
		LastRunAt     string                 `json:"last_run_at,omitempty"`
		LastRunStatus string                 `json:"last_run_status,omitempty"`
		LastCheckAt   string                 `json:"last_check_at,omitempty"`
	}{
		Status:        status,
		Uptime:        h.now().Sub(h.startedAt).Round(time.Second).String(),
		Checks:        h.results,
		LastRunStatus: h.lastRunStatus,
	}
	if !h.lastRunAt.IsZero() {
		body.LastRunAt = h.lastRunAt.UTC().Format(time.RFC3339)
	}
	if !h.lastCheckAt.IsZero() {
		body.LastCheckAt = h.lastCheckAt.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
