// Package health reports liveness and readiness for the MCP server.
// Liveness only says the process is up; readiness hinges on the registered
// checks, chiefly whether the engine subprocess still answers its ping.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

// Status is the health state of a component or of the server as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const (
	// Checks that don't answer within this window count as unhealthy.
	defaultCheckTimeout = 5 * time.Second
	// Checks slower than this still pass but mark the component degraded.
	slowCheckThreshold = 1 * time.Second
)

// CheckFunc checks one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Component is the result of one check in a Report.
type Component struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report is the overall health response served on the readiness endpoint.
type Report struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Version    string      `json:"version,omitempty"`
	GitCommit  string      `json:"git_commit,omitempty"`
	Components []Component `json:"components,omitempty"`
}

type namedCheck struct {
	name  string
	check CheckFunc
}

// Checker runs registered checks and serves the health endpoints.
type Checker struct {
	logger       logging.ContextLogger
	version      string
	gitCommit    string
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks []namedCheck
}

// NewChecker creates a Checker reporting the given build identity.
func NewChecker(logger logging.ContextLogger, version, gitCommit string) *Checker {
	return &Checker{
		logger:       logger,
		version:      version,
		gitCommit:    gitCommit,
		checkTimeout: defaultCheckTimeout,
	}
}

// RegisterCheck adds a named component check. Checks run in registration
// order, so register the engine first and anything that depends on it after.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, namedCheck{name: name, check: check})
}

// Check runs every registered check and aggregates the results. Any
// unhealthy component makes the report unhealthy; a slow-but-passing
// component only degrades it.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]namedCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   c.version,
		GitCommit: c.gitCommit,
	}

	for _, nc := range checks {
		comp := c.runCheck(ctx, nc)
		report.Components = append(report.Components, comp)

		switch comp.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}

	return report
}

func (c *Checker) runCheck(ctx context.Context, nc namedCheck) Component {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	err := nc.check(checkCtx)
	latency := time.Since(start)

	comp := Component{
		Name:      nc.name,
		Status:    StatusHealthy,
		LatencyMs: latency.Milliseconds(),
		CheckedAt: time.Now().UTC(),
	}

	switch {
	case err != nil:
		comp.Status = StatusUnhealthy
		comp.Detail = err.Error()
		c.logger.Error("Health check failed", "component", nc.name, "error", err, "latency", latency)
	case latency > slowCheckThreshold:
		comp.Status = StatusDegraded
		comp.Detail = "check passed but exceeded latency threshold"
		c.logger.Warn("Health check slow", "component", nc.name, "latency", latency)
	}

	return comp
}

// LivenessHandler answers 200 as long as the process can serve HTTP.
// It runs no checks; a wedged engine must not make the orchestrator
// restart an otherwise-working server.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Report{
			Status:    StatusHealthy,
			Timestamp: time.Now().UTC(),
			Version:   c.version,
			GitCommit: c.gitCommit,
		})
	}
}

// ReadinessHandler runs the full check set. It answers 503 only when some
// component is unhealthy; a degraded server is still ready for traffic.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
			ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
		}

		report := c.Check(ctx)

		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)

		if report.Status != StatusHealthy {
			c.logger.WithContext(ctx).Warn("Readiness check not healthy", "status", report.Status)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, report Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
