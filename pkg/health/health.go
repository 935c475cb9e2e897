// Package health exposes liveness and readiness probes for a running job.
// Components register Check functions; readiness aggregates them, and
// Progress reports which pipeline stage the job is in.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the health state of a component or the job overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes a single component.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker holds the registered checks of a job.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check stored under name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

var severity = map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}

// Run probes every component in parallel. The overall status is the most
// severe component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	checks := make([]Check, 0, len(c.checks))
	for name, check := range c.checks {
		names = append(names, name)
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			start := time.Now()
			res := check(ctx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			results[i] = res
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(results)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, res := range results {
		report.Components[names[i]] = res
		if severity[res.Status] > severity[report.Status] {
			report.Status = res.Status
		}
		if res.Status == StatusDown {
			c.logger.Debug("component down", "name", names[i], "message", res.Message)
		}
	}
	return report
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// LiveHandler answers 200 for as long as the process serves requests.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 200 only while every component is up.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		code := http.StatusOK
		if report.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

// Stages a run moves through.
const (
	StageIdle    = "idle"
	StageIngest  = "ingest"
	StageMerge   = "merge"
	StageReport  = "report"
	StageDone    = "done"
	StageFailed  = "failed"
	StageCleanup = "cleanup"
)

// Progress records the current pipeline stage. The zero value reports
// StageIdle. It is safe for concurrent use.
type Progress struct {
	stage atomic.Value
}

func (p *Progress) Set(stage string) {
	p.stage.Store(stage)
}

func (p *Progress) Stage() string {
	if s, ok := p.stage.Load().(string); ok {
		return s
	}
	return StageIdle
}

// Check reports the stage as a component; a failed run is down.
func (p *Progress) Check() Check {
	return func(ctx context.Context) ComponentHealth {
		stage := p.Stage()
		if stage == StageFailed {
			return ComponentHealth{Status: StatusDown, Message: stage}
		}
		return ComponentHealth{Status: StatusUp, Message: stage}
	}
}
