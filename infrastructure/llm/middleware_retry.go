package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// retryLLM re-sends failed requests with jittered exponential backoff.
type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries up to maxRetries times after the first attempt.
// Only errors for which IsRetryable returns true are retried, so an open
// circuit or a rejected API key fails fast.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:       next,
			maxRetries: max(maxRetries, 0),
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) || attempt == r.maxRetries {
			break
		}

		timer := time.NewTimer(r.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", 0, 0, ctx.Err()
		case <-timer.C:
		}
	}

	if attempts == 1 {
		return "", 0, 0, lastErr
	}
	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// backoff doubles baseDelay per attempt, applies ±25% jitter and caps the
// result at maxDelay.
func (r *retryLLM) backoff(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 30)
	delay := r.baseDelay * time.Duration(1<<attempt)

	// #nosec G404 -- jitter does not need a cryptographic source.
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay - delay/4 + jitter

	if r.maxDelay > 0 && delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

func (r *retryLLM) GetModel() string  { return r.next.GetModel() }
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }
