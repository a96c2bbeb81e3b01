package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DefaultFailureThreshold is the number of consecutive failed orchestrator
// calls after which the process reports itself unhealthy.
const DefaultFailureThreshold = 3

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// CallHealth tracks consecutive orchestrator call failures. Fields are
// protected by mu because connection goroutines record results while the
// status server reads them.
type CallHealth struct {
	mu        sync.Mutex
	threshold int
	failures  int
	lastOp    string
	lastErr   string
}

func NewCallHealth(threshold int) *CallHealth {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &CallHealth{threshold: threshold}
}

func (h *CallHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
}

func (h *CallHealth) recordFailure(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastOp = op
	h.lastErr = err.Error()
}

// snapshot returns a consistent copy of the health fields under the lock.
func (h *CallHealth) snapshot() (status HealthStatus, failures int, lastErr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked(), h.failures, h.lastErrorLocked()
}

func (h *CallHealth) Status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked()
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *CallHealth) statusLocked() HealthStatus {
	switch {
	case h.failures >= h.threshold:
		return StatusFailed
	case h.failures > 0:
		return StatusDegraded
	}
	return StatusHealthy
}

// lastErrorLocked formats the most recent failure. Caller must hold h.mu.
func (h *CallHealth) lastErrorLocked() string {
	if h.lastErr == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", h.lastOp, h.lastErr)
}

type HealthThresholds struct {
	MaxCPUPercent    float64
	MaxMemoryPercent float64
}

// HealthReport answers the orchestrator's periodic health check.
type HealthReport struct {
	Healthy       bool         `json:"healthy"`
	Status        HealthStatus `json:"status"`
	CPUPercent    float64      `json:"cpuPercent"`
	MemoryPercent float64      `json:"memoryPercent"`
	CallFailures  int          `json:"callFailures"`
	LastError     string       `json:"lastError,omitempty"`
	CheckedAt     time.Time    `json:"checkedAt"`
}

// Checker combines host load and orchestrator call health.
type Checker struct {
	thresholds HealthThresholds
	calls      *CallHealth

	cpuPercent func(context.Context) (float64, error)
	memPercent func(context.Context) (float64, error)
}

// NewChecker samples the host with gopsutil. calls may be nil.
func NewChecker(thresholds HealthThresholds, calls *CallHealth) *Checker {
	if calls == nil {
		calls = NewCallHealth(DefaultFailureThreshold)
	}
	return &Checker{
		thresholds: thresholds,
		calls:      calls,
		cpuPercent: hostCPUPercent,
		memPercent: hostMemoryPercent,
	}
}

// Check reports the current health. A host metric that cannot be sampled
// degrades the report but does not fail it.
func (c *Checker) Check(ctx context.Context) HealthReport {
	status, failures, lastErr := c.calls.snapshot()
	report := HealthReport{
		Status:       status,
		CallFailures: failures,
		LastError:    lastErr,
		CheckedAt:    time.Now(),
	}
	overloaded := false

	if pct, err := c.cpuPercent(ctx); err != nil {
		report.degrade(fmt.Errorf("sample cpu: %w", err))
	} else {
		report.CPUPercent = pct
		overloaded = overloaded || (c.thresholds.MaxCPUPercent > 0 && pct > c.thresholds.MaxCPUPercent)
	}

	if pct, err := c.memPercent(ctx); err != nil {
		report.degrade(fmt.Errorf("sample memory: %w", err))
	} else {
		report.MemoryPercent = pct
		overloaded = overloaded || (c.thresholds.MaxMemoryPercent > 0 && pct > c.thresholds.MaxMemoryPercent)
	}

	if overloaded {
		report.Status = StatusFailed
	}
	report.Healthy = report.Status != StatusFailed
	return report
}

func (r *HealthReport) degrade(err error) {
	if r.Status == StatusHealthy {
		r.Status = StatusDegraded
	}
	if r.LastError == "" {
		r.LastError = err.Error()
	}
}

func hostCPUPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("no cpu samples")
	}
	return pcts[0], nil
}

func hostMemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
