package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-ragqa/internal/ports"
)

func TestErrorClassifier_HTTP(t *testing.T) {
	ec := &ErrorClassifier{Provider: "ollama"}
	tests := []struct {
		status int
		want   ErrorType
	}{
		{401, ErrorTypeAuthentication},
		{403, ErrorTypeAuthentication},
		{404, ErrorTypeNotFound},
		{408, ErrorTypeTimeout},
		{422, ErrorTypeBadRequest},
		{429, ErrorTypeRateLimit},
		{502, ErrorTypeServerError},
		{504, ErrorTypeTimeout},
		{200, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ec.ClassifyHTTPError(tt.status, "msg", nil).Type)
		})
	}
}

func TestErrorClassifier_Transport(t *testing.T) {
	ec := &ErrorClassifier{Provider: "ollama"}

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.Equal(t, ErrorTypeNetwork, ec.ClassifyTransportError(fmt.Errorf("post: %w", opErr)).Type)
	assert.Equal(t, ErrorTypeTimeout, ec.ClassifyTransportError(context.DeadlineExceeded).Type)
	assert.Equal(t, ErrorTypeCanceled, ec.ClassifyTransportError(context.Canceled).Type)
	assert.Equal(t, ErrorTypeUnknown, ec.ClassifyTransportError(errors.New("odd")).Type)
}

func TestProviderError_MessageAndSentinels(t *testing.T) {
	cause := errors.New("upstream said no")
	err := NewProviderError("openai", ErrorTypeRateLimit, 429, "slow down", cause)

	assert.Equal(t, "openai error (HTTP 429) [rate_limit]: slow down: upstream said no", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.NotErrorIs(t, err, ports.ErrTimeout)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(ErrCircuitOpen))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.True(t, IsRetryable(errors.New("unclassified")))
	assert.True(t, IsRetryable(NewProviderError("x", ErrorTypeTimeout, 0, "", nil)))
	assert.False(t, IsRetryable(NewProviderError("x", ErrorTypeContentPolicy, 400, "", nil)))
}
