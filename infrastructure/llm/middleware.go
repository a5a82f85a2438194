package llm

import (
	"time"

	"github.com/ahrav/go-ragqa/internal/ports"
)

// Resilience configures the standard middleware stack.
type Resilience struct {
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RequestTimeout  time.Duration
	RequestsPerSec  float64
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
}

// DefaultResilience suits a local Ollama server as well as hosted APIs.
func DefaultResilience() Resilience {
	return Resilience{
		MaxRetries:      3,
		RetryBaseDelay:  500 * time.Millisecond,
		RetryMaxDelay:   10 * time.Second,
		RequestTimeout:  2 * time.Minute,
		RequestsPerSec:  0,
		Burst:           1,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// StandardMiddleware returns, outermost first: tracing, metrics, circuit
// breaker, retry, rate limit and per-attempt timeout. collector and
// observer may be nil.
func StandardMiddleware(
	provider string,
	r Resilience,
	collector ports.MetricsCollector,
	observer CircuitBreakerObserver,
) []Middleware {
	return []Middleware{
		TracingMiddleware(provider),
		MetricsMiddleware(collector, provider),
		CircuitBreakerMiddleware(NewCircuitBreaker(provider, r.BreakerFailures, r.BreakerCooldown, observer)),
		RetryMiddleware(r.MaxRetries, r.RetryBaseDelay, r.RetryMaxDelay),
		RateLimitMiddleware(r.RequestsPerSec, r.Burst),
		TimeoutMiddleware(r.RequestTimeout),
	}
}
