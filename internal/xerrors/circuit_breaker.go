// Package xerrors carries the retry/circuit-breaker primitives every
// outbound client (upstream feed, reader service, LLM provider) is wrapped
// with, plus the transient/permanent error classification retry uses.
package xerrors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is a circuit breaker's lifecycle state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig tunes breaker thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultCircuitBreakerConfig returns sane defaults for an outbound HTTP dependency.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker protects a downstream collaborator from cascading failures.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker creates a breaker starting in the closed state.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultCircuitBreakerConfig().SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCircuitBreakerConfig().Timeout
	}
	return &CircuitBreaker{name: name, config: config, state: StateClosed}
}

// State reports the current breaker state.
func (c *CircuitBreaker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *CircuitBreaker) stateLocked() State {
	if c.state == StateOpen && time.Since(c.openedAt) >= c.config.Timeout {
		c.state = StateHalfOpen
		c.successes = 0
	}
	return c.state
}

// Allow reports whether a call may proceed, returning a DegradedError if the
// breaker is open.
func (c *CircuitBreaker) Allow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stateLocked() == StateOpen {
		return &DegradedError{Name: c.name, Since: c.openedAt}
	}
	return nil
}

// Mark records the outcome of a call that Allow permitted. err == nil is a success.
func (c *CircuitBreaker) Mark(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.onSuccessLocked()
		return
	}
	c.onFailureLocked()
}

func (c *CircuitBreaker) onSuccessLocked() {
	switch c.state {
	case StateHalfOpen:
		c.successes++
		if c.successes >= c.config.SuccessThreshold {
			c.state = StateClosed
			c.failures = 0
			c.successes = 0
		}
	case StateClosed:
		c.failures = 0
	}
}

func (c *CircuitBreaker) onFailureLocked() {
	switch c.state {
	case StateHalfOpen:
		c.state = StateOpen
		c.openedAt = time.Now()
		c.successes = 0
	case StateClosed:
		c.failures++
		if c.failures >= c.config.FailureThreshold {
			c.state = StateOpen
			c.openedAt = time.Now()
		}
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	c.Mark(err)
	return err
}

// ExecuteFunc runs fn through breaker, returning a typed result.
func ExecuteFunc[T any](cb *CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cb == nil {
		return fn(ctx)
	}
	if err := cb.Allow(); err != nil {
		return zero, err
	}
	result, err := fn(ctx)
	cb.Mark(err)
	return result, err
}

// DegradedError indicates the breaker is open and the call was short-circuited.
type DegradedError struct {
	Name  string
	Since time.Time
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("circuit breaker %q open since %s", e.Name, e.Since.Format(time.RFC3339))
}

// IsDegraded reports whether err originated from an open circuit breaker.
func IsDegraded(err error) bool {
	var d *DegradedError
	return errors.As(err, &d)
}
