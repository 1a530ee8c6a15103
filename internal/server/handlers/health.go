package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/3leaps/gocrack/internal/errors"
)

const checkTimeout = 2 * time.Second

// Health states reported per check and overall.
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
	statusTimeout   = "timeout"
)

// HealthChecker is implemented by components that take part in readiness.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of a passing health endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers and serves the /health endpoints.
type HealthManager struct {
	mu       sync.RWMutex
	version  string
	started  time.Time
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager reporting version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		started:  time.Now(),
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds or replaces a named checker.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// HealthHandler runs every checker and reports the combined status.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, m.runChecks(r.Context()))
}

// LivenessHandler reports that the process is serving requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, nil)
}

// ReadinessHandler reports whether every checker passes.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, m.runChecks(r.Context()))
}

// StartupHandler reports that initialization has finished.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, nil)
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for k, v := range m.checkers {
		checkers[k] = v
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checkers[name].CheckHealth(checkCtx)
		switch {
		case err == nil:
			results[name] = statusHealthy
		case checkCtx.Err() == context.DeadlineExceeded:
			results[name] = statusTimeout
		default:
			results[name] = statusUnhealthy
		}
		cancel()
	}
	return results
}

func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	overall := statusHealthy
	for _, st := range checks {
		switch st {
		case statusUnhealthy:
			return statusUnhealthy
		case statusTimeout, statusDegraded:
			overall = statusDegraded
		}
	}
	return overall
}

func (m *HealthManager) respond(w http.ResponseWriter, r *http.Request, checks map[string]string) {
	overall := m.determineOverallStatus(checks)
	if overall == statusUnhealthy {
		respondWithError(w, r, apperrors.NewServiceUnavailable("health check failed").
			WithDetails(map[string]any{"checks": checks, "version": m.version}))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    overall,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(m.started).Round(time.Second).String(),
		Checks:    checks,
	})
}

var globalHealthManager *HealthManager

// InitHealthManager installs the process-wide health manager.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide health manager, or nil.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// HealthHandler serves /health using the process-wide manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal(w, r, (*HealthManager).HealthHandler)
}

// LivenessHandler serves /health/live using the process-wide manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal(w, r, (*HealthManager).LivenessHandler)
}

// ReadinessHandler serves /health/ready using the process-wide manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal(w, r, (*HealthManager).ReadinessHandler)
}

// StartupHandler serves /health/startup using the process-wide manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal(w, r, (*HealthManager).StartupHandler)
}

func withGlobal(w http.ResponseWriter, r *http.Request, fn func(*HealthManager, http.ResponseWriter, *http.Request)) {
	m := globalHealthManager
	if m == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailable("health manager not initialized"))
		return
	}
	fn(m, w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
