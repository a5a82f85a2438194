package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedLLM paces requests through a token bucket shared by every
// client built from the same middleware value.
type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware allows perSecond sustained requests with bursts of
// burst. A non-positive perSecond disables limiting.
func RateLimitMiddleware(perSecond float64, burst int) Middleware {
	if perSecond <= 0 {
		return func(next CoreLLM) CoreLLM { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))

	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{next: next, limiter: limiter}
	}
}

func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

func (r *rateLimitedLLM) GetModel() string  { return r.next.GetModel() }
func (r *rateLimitedLLM) SetModel(m string) { r.next.SetModel(m) }

// timeoutLLM bounds each attempt. Placed inside RetryMiddleware it limits
// attempts individually; outside, it limits the whole retry loop.
type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware applies timeout to every request. Zero disables it.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	if timeout <= 0 {
		return func(next CoreLLM) CoreLLM { return next }
	}
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, opts)
}

func (t *timeoutLLM) GetModel() string  { return t.next.GetModel() }
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
