package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the provider while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is the breaker's position.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreakerObserver is notified of state transitions. The Prometheus
// adapter in infrastructure/middleware implements it.
type CircuitBreakerObserver interface {
	OnStateChange(provider string, from, to CircuitBreakerState)
}

// CircuitBreaker opens after maxFailures consecutive failures and lets a
// single probe through once cooldown has elapsed.
//
// Only failures IsRetryable classifies as transient count; a bad request
// says nothing about the provider's health.
type CircuitBreaker struct {
	mu          sync.Mutex
	provider    string
	state       CircuitBreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	observer    CircuitBreakerObserver
	now         func() time.Time
}

// NewCircuitBreaker creates a closed breaker. observer may be nil.
func NewCircuitBreaker(provider string, maxFailures int, cooldown time.Duration, observer CircuitBreakerObserver) *CircuitBreaker {
	return &CircuitBreaker{
		provider:    provider,
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		observer:    observer,
		now:         time.Now,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow reports whether a request may proceed, moving an expired open
// breaker to half-open.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if err == nil || !IsRetryable(err) {
		cb.failures = 0
		if cb.state != StateClosed {
			cb.transition(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		if cb.state != StateOpen {
			cb.transition(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	from := cb.state
	cb.state = to
	if cb.observer != nil {
		cb.observer.OnStateChange(cb.provider, from, to)
	}
}

type circuitBreakerLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware guards a provider with cb. Pass the same breaker
// to every client that shares the provider.
func CircuitBreakerMiddleware(cb *CircuitBreaker) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{next: next, cb: cb}
	}
}

func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if !c.cb.allow() {
		return "", 0, 0, ErrCircuitOpen
	}
	response, tokensIn, tokensOut, err := c.next.DoRequest(ctx, prompt, opts)
	c.cb.record(err)
	return response, tokensIn, tokensOut, err
}

func (c *circuitBreakerLLM) GetModel() string  { return c.next.GetModel() }
func (c *circuitBreakerLLM) SetModel(m string) { c.next.SetModel(m) }
