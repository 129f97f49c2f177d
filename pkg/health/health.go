// Package health provides liveness and readiness probes for the simulation
// server. Readiness aggregates named checks: the tick loop, the spatial
// index's structural invariants, resource usage and the HTTP listener.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrSimulationStalled is returned when the tick counter stops advancing.
var ErrSimulationStalled = errors.New("simulation stalled")

// HealthCheck defines the interface for individual health checks.
type HealthCheck interface {
	// Name returns the unique name of this health check
	Name() string
	// Check performs the health check and returns an error if unhealthy
	Check(ctx context.Context) error
}

// HealthStatus represents the overall health status of the application.
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents the health status of an individual component.
type ComponentHealth struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

// HealthChecker manages and executes health checks for the application.
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

// NewHealthChecker creates a new health checker instance.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers a check, replacing any with the same name.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck removes a health check by name.
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// CheckHealth runs every registered check concurrently and aggregates the
// results. The overall status is "healthy" only if all checks pass.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, check)
		}()
	}
	wg.Wait()

	status := HealthStatus{
		Status: "healthy",
		Checks: make(map[string]ComponentHealth, len(checks)),
	}
	for i, check := range checks {
		if results[i].Status != "healthy" {
			status.Status = "unhealthy"
		}
		status.Checks[check.Name()] = results[i]
	}
	return status
}

func runCheck(ctx context.Context, check HealthCheck) ComponentHealth {
	start := time.Now()
	err := check.Check(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	result := ComponentHealth{Status: "healthy", Duration: time.Since(start).String()}
	if err != nil {
		result.Status = "unhealthy"
		result.Message = err.Error()
	}
	return result
}

// LivenessHandler answers 200 as long as the process can serve HTTP.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler runs all checks and answers 200 or 503 with the details.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// SimulationHealthCheck fails when the simulation is stopped or when the
// tick counter has not moved for longer than maxStall.
type SimulationHealthCheck struct {
	running  func() bool
	tick     func() uint64
	maxStall time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastTick uint64
	lastSeen time.Time
}

// NewSimulationHealthCheck creates the tick-loop check
func NewSimulationHealthCheck(running func() bool, tick func() uint64, maxStall time.Duration) *SimulationHealthCheck {
	return &SimulationHealthCheck{
		running:  running,
		tick:     tick,
		maxStall: maxStall,
		now:      time.Now,
	}
}

func (s *SimulationHealthCheck) Name() string {
	return "simulation"
}

func (s *SimulationHealthCheck) Check(ctx context.Context) error {
	if !s.running() {
		return fmt.Errorf("simulation is not running")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tick := s.tick()
	if s.lastSeen.IsZero() || tick != s.lastTick {
		s.lastTick = tick
		s.lastSeen = now
		return nil
	}
	if stalled := now.Sub(s.lastSeen); s.maxStall > 0 && stalled > s.maxStall {
		return fmt.Errorf("%w: tick %d unchanged for %s", ErrSimulationStalled, tick, stalled.Round(time.Millisecond))
	}
	return nil
}

// IndexHealthCheck runs the spatial index's consistency check
type IndexHealthCheck struct {
	check func() error
}

// NewIndexHealthCheck wraps a consistency check such as Game.CheckIndex
func NewIndexHealthCheck(check func() error) *IndexHealthCheck {
	return &IndexHealthCheck{check: check}
}

func (i *IndexHealthCheck) Name() string {
	return "quadtree_consistency"
}

func (i *IndexHealthCheck) Check(ctx context.Context) error {
	return i.check()
}

// NetworkHealthCheck fails until the HTTP listener is bound.
type NetworkHealthCheck struct {
	listenerAddr func() string
}

// NewNetworkHealthCheck creates a health check for the listener.
func NewNetworkHealthCheck(listenerAddr func() string) *NetworkHealthCheck {
	return &NetworkHealthCheck{listenerAddr: listenerAddr}
}

func (n *NetworkHealthCheck) Name() string {
	return "network"
}

func (n *NetworkHealthCheck) Check(ctx context.Context) error {
	if n.listenerAddr() == "" {
		return fmt.Errorf("network listener is not active")
	}
	return nil
}
