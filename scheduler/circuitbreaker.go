package scheduler

import (
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerConfig configures the per-tool breaker wrapping tool
// dispatch (SPEC_FULL.md supplemented feature #2).
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	Timeout          time.Duration // time before a half-open retry is attempted
}

// DefaultCircuitBreakerConfig matches the teacher's retry.go defaults in
// spirit: a handful of consecutive failures before tripping, a short cool-
// down before probing again.
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	FailureThreshold: 5,
	Timeout:          30 * time.Second,
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker is a single tool's breaker. Adapted from teacher's
// graph/retry.go CircuitBreaker, narrowed to the closed/open/half-open
// transitions this package needs and keyed per tool id rather than per
// graph node.
type circuitBreaker struct {
	mu              sync.Mutex
	config          CircuitBreakerConfig
	state           breakerState
	failures        int
	lastFailureTime time.Time
}

func newCircuitBreaker(cfg CircuitBreakerConfig) *circuitBreaker {
	return &circuitBreaker{config: cfg, state: breakerClosed}
}

// ErrCircuitOpen is returned by allow when the breaker is open (spec:
// "short-circuits further dispatch of that tool ... recording a
// task_warning event rather than blocking the whole layer").
type ErrCircuitOpen struct{ Tool string }

func (e *ErrCircuitOpen) Error() string { return fmt.Sprintf("circuit open for tool %s", e.Tool) }

func (cb *circuitBreaker) allow(tool string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerOpen:
		if time.Since(cb.lastFailureTime) > cb.config.Timeout {
			cb.state = breakerHalfOpen
			return nil
		}
		return &ErrCircuitOpen{Tool: tool}
	default:
		return nil
	}
}

func (cb *circuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.state = breakerClosed
		return
	}

	cb.failures++
	cb.lastFailureTime = time.Now()
	if cb.state == breakerHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.state = breakerOpen
	}
}

// circuitBreakerRegistry lazily creates one breaker per tool id.
type circuitBreakerRegistry struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	breakers map[string]*circuitBreaker
}

func newCircuitBreakerRegistry(cfg CircuitBreakerConfig) *circuitBreakerRegistry {
	return &circuitBreakerRegistry{config: cfg, breakers: make(map[string]*circuitBreaker)}
}

func (r *circuitBreakerRegistry) forTool(tool string) *circuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[tool]
	if !ok {
		cb = newCircuitBreaker(r.config)
		r.breakers[tool] = cb
	}
	return cb
}
