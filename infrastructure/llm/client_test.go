package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ragqa/internal/ports"
)

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("nonexistent", ClientConfig{})
	require.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "ollama")
}

func TestSupportedProviders(t *testing.T) {
	assert.Subset(t, SupportedProviders(), []string{"anthropic", "google", "ollama", "openai"})
}

func TestRegisterProviderFactory_Replaces(t *testing.T) {
	calls := 0
	RegisterProviderFactory("test-provider", func(ClientConfig) (CoreLLM, error) {
		calls++
		return NewMockCoreLLM(), nil
	})

	client, err := NewClient("test-provider", ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, "test-model", client.GetModel())
	assert.Equal(t, 1, calls)

	RegisterProviderFactory("test-provider", func(ClientConfig) (CoreLLM, error) {
		return nil, errors.New("broken")
	})
	_, err = NewClient("test-provider", ClientConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNewClientFromCore_MiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &orderLLM{CoreLLM: next, name: name, order: &order}
		}
	}

	client := NewClientFromCore(NewMockCoreLLM(), ClientConfig{
		Middleware: []Middleware{tag("outer"), tag("inner")},
	})
	_, err := client.Complete(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestClient_CompleteWrapsFailures(t *testing.T) {
	t.Run("provider error keeps its classification", func(t *testing.T) {
		core := NewMockCoreLLM()
		core.Model = "mistral"
		core.Err = NewProviderError("ollama", ErrorTypeRateLimit, 429, "slow down", nil)
		client := NewClientFromCore(core, ClientConfig{})

		_, err := client.Complete(context.Background(), "p", nil)

		var llmErr *ports.LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, "mistral", llmErr.Model)
		assert.Equal(t, "Complete", llmErr.Operation)
		assert.True(t, llmErr.IsRetryable())
		assert.ErrorIs(t, err, ports.ErrRateLimited)

		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 429, pe.StatusCode)
	})

	t.Run("plain error", func(t *testing.T) {
		core := NewMockCoreLLM()
		core.Err = errors.New("boom")
		client := NewClientFromCore(core, ClientConfig{})

		resp, _, _, err := client.CompleteWithUsage(context.Background(), "p", nil)

		require.Error(t, err)
		assert.Empty(t, resp)
		assert.Contains(t, err.Error(), "model=test-model")
		assert.Contains(t, err.Error(), "boom")
		var llmErr *ports.LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.False(t, llmErr.IsRetryable())
	})

	t.Run("success is unwrapped", func(t *testing.T) {
		client := NewClientFromCore(NewMockCoreLLM(), ClientConfig{})

		resp, in, out, err := client.CompleteWithUsage(context.Background(), "p", nil)

		require.NoError(t, err)
		assert.Equal(t, "test response", resp)
		assert.Equal(t, 10, in)
		assert.Equal(t, 20, out)
	})
}

type orderLLM struct {
	CoreLLM
	name  string
	order *[]string
}

func (o *orderLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	*o.order = append(*o.order, o.name)
	return o.CoreLLM.DoRequest(ctx, prompt, opts)
}

func TestClient_EstimateTokens(t *testing.T) {
	client := NewClientFromCore(NewMockCoreLLM(), ClientConfig{})

	n, err := client.EstimateTokens("12345678")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = client.EstimateTokens("123456789")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestParseRequestOptions(t *testing.T) {
	opts := ParseRequestOptions(map[string]any{
		"max_tokens":  -5,
		"temperature": 3.5,
		"top_p":       0.5,
		"system":      "be brief",
		"seed":        7,
	}, "mistral")

	assert.Equal(t, DefaultMaxTokens, opts.MaxTokens)
	assert.Equal(t, "mistral", opts.Model)
	assert.Nil(t, opts.Temperature)
	require.NotNil(t, opts.TopP)
	assert.InDelta(t, 0.5, *opts.TopP, 1e-9)
	assert.Equal(t, "be brief", opts.System)
	assert.Equal(t, map[string]any{"seed": 7}, opts.Extra)
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"http://localhost:11434/v1", "http://localhost:11434/v1", false},
		{"ftp://example.com", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateBaseURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
