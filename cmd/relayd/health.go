// health.go - Health monitoring for the relay
package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"shadowwire/internal/blinding"
	"shadowwire/internal/shield"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// Check probes one component. It returns the status and a short message.
type Check func() (HealthStatus, string)

// ComponentHealth represents the health of a specific component
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// HealthChecker runs the registered component checks
type HealthChecker struct {
	mu        sync.Mutex
	checks    map[string]Check
	startTime time.Time
	version   string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]Check),
		startTime: time.Now(),
		version:   version,
	}
}

// RegisterComponent registers a health check for a component
func (hc *HealthChecker) RegisterComponent(name string, check Check) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// CheckHealth performs health checks for all registered components
func (hc *HealthChecker) CheckHealth() *SystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := Healthy
	components := make([]ComponentHealth, 0, len(names))
	for _, name := range names {
		start := time.Now()
		status, msg := hc.checks[name]()
		components = append(components, ComponentHealth{
			Name:      name,
			Status:    status,
			Message:   msg,
			LastCheck: time.Now(),
			Latency:   time.Since(start),
		})

		if status == Unhealthy {
			overall = Unhealthy
		} else if status == Degraded && overall == Healthy {
			overall = Degraded
		}
	}

	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     time.Now(),
		Components:    components,
		Uptime:        time.Since(hc.startTime),
		Version:       hc.version,
	}
}

// HealthCheckResponse represents the response format for health check endpoints
type HealthCheckResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CreateHealthResponse creates a standardized health check response
func CreateHealthResponse(health *SystemHealth) *HealthCheckResponse {
	status := "success"
	message := "System is healthy"

	if health.OverallStatus == Unhealthy {
		status = "error"
		message = "System is unhealthy"
	} else if health.OverallStatus == Degraded {
		status = "warning"
		message = "System is degraded"
	}

	return &HealthCheckResponse{
		Status:  status,
		Message: message,
		Data:    health,
	}
}

// selfTest proves one value at startup and keeps the proof so the engine
// check can re-verify it cheaply.
type selfTest struct {
	proof      []byte
	commitment []byte
	bits       int
}

func runSelfTest(p shield.Prover, rand io.Reader, bits int) (*selfTest, error) {
	f, err := blinding.Sample(rand)
	if err != nil {
		return nil, err
	}
	defer f.Wipe()
	proof, commitment, err := p.ProveFactor(0, f, bits)
	if err != nil {
		return nil, errors.Wrap(err, "self-test proof")
	}
	if !p.Verify(proof, commitment, bits) {
		return nil, errors.New("self-test proof did not verify")
	}
	return &selfTest{proof: proof, commitment: commitment, bits: bits}, nil
}

func engineCheck(p shield.Prover, st *selfTest) Check {
	return func() (HealthStatus, string) {
		if !p.Verify(st.proof, st.commitment, st.bits) {
			return Unhealthy, "self-test proof no longer verifies"
		}
		return Healthy, fmt.Sprintf("%s ready at %d bits", p.Name(), st.bits)
	}
}

func entropyCheck(o *shield.Orchestrator, rand io.Reader) Check {
	return func() (HealthStatus, string) {
		if o.Halted() {
			return Unhealthy, "intake halted after entropy failure"
		}
		var buf [32]byte
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return Unhealthy, err.Error()
		}
		return Healthy, "OK"
	}
}

func poolCheck(o *shield.Orchestrator, workers int) Check {
	return func() (HealthStatus, string) {
		busy := o.InFlight()
		if busy >= workers {
			return Degraded, fmt.Sprintf("all %d workers busy, %d queued", workers, o.Queued())
		}
		return Healthy, fmt.Sprintf("%d/%d workers busy", busy, workers)
	}
}
