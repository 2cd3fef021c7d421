package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the breaker's view of a model endpoint.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // calls pass through
	CircuitOpen                         // calls fail fast until the cooldown ends
	CircuitHalfOpen                     // one trial call is in flight
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig controls when a tier is taken out of rotation.
type CircuitBreakerConfig struct {
	Threshold  int           // consecutive failures that open the circuit
	ResetAfter time.Duration // cooldown before a trial call is let through
}

// DefaultCircuitBreakerConfig opens after 5 straight failures and admits a trial call
// again after 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second}
}

// CircuitBreaker counts consecutive model failures. Once open it rejects
// calls until ResetAfter has elapsed, then admits a single trial call whose
// outcome decides whether the circuit closes or reopens.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker returns a closed breaker. A threshold below one is
// treated as one.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. The error explains a rejection.
func (cb *CircuitBreaker) Allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		waited := cb.now().Sub(cb.openedAt)
		if waited >= cb.cfg.ResetAfter {
			cb.state = CircuitHalfOpen
			return true, nil
		}
		return false, fmt.Errorf("circuit open after %d consecutive failures, retry in %v",
			cb.failures, (cb.cfg.ResetAfter - waited).Round(time.Second))
	default:
		return false, errors.New("circuit half-open, trial call in flight")
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.mu.Unlock()
}

// RecordFailure counts a failure. A failed trial call reopens the circuit
// immediately; otherwise it opens once the threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.Threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// abandon hands back a trial call whose caller went away. The circuit returns to
// open with its cooldown already spent, so the next call is a trial again.
func (cb *CircuitBreaker) abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.openedAt = cb.now().Add(-cb.cfg.ResetAfter)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// GuardedClient puts a CircuitBreaker in front of an LLMClient. Rejected
// calls return ErrorTypeCircuitOpen right away so the generator can fall
// through to the next tier.
type GuardedClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
}

func NewGuardedClient(inner LLMClient, breaker *CircuitBreaker) *GuardedClient {
	return &GuardedClient{inner: inner, breaker: breaker}
}

func (g *GuardedClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	if ok, reason := g.breaker.Allow(); !ok {
		return nil, NewErrorWithContext(ErrorTypeCircuitOpen, "model temporarily unavailable", false, reason,
			g.inner.GetModel(), g.inner.GetEndpoint(), 0)
	}

	result, err := g.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled), GetErrorType(err) == ErrorTypeCanceled:
		// A cancelled session says nothing about the provider.
		g.breaker.abandon()
	default:
		g.breaker.RecordFailure()
	}
	return result, err
}

func (g *GuardedClient) GetModel() string    { return g.inner.GetModel() }
func (g *GuardedClient) GetEndpoint() string { return g.inner.GetEndpoint() }

// Breaker exposes the breaker for health reporting.
func (g *GuardedClient) Breaker() *CircuitBreaker { return g.breaker }
