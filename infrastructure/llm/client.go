// Package llm provides a unified client for the language models that
// generate and validate answers, with rate limiting, retries, circuit
// breaking, metrics and tracing layered on as middleware.
//
// Providers (OpenAI, Ollama, Anthropic, Google) sit behind the CoreLLM
// interface and register themselves by name. NewClient looks the provider
// up, wraps it in the configured middleware and returns a ports.LLMClient.
//
// Basic usage:
//
//	client, err := llm.NewClient("ollama", llm.ClientConfig{
//	    Model: "mistral",
//	})
//	answer, err := client.Complete(ctx, prompt, nil)
//
// With middleware:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o-mini",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("openai"),
//	        llm.MetricsMiddleware(collector, "openai"),
//	        llm.RetryMiddleware(3, time.Second, 10*time.Second),
//	        llm.RateLimitMiddleware(5, 10),
//	    },
//	})
package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ahrav/go-ragqa/internal/ports"
)

// ErrUnknownProvider is returned by NewClient for an unregistered provider.
var ErrUnknownProvider = errors.New("unknown provider")

// CoreLLM is the minimal contract a provider implements. Middleware wraps
// a CoreLLM and returns another.
type CoreLLM interface {
	// DoRequest sends prompt to the model and returns the response text
	// with input and output token counts.
	DoRequest(
		ctx context.Context,
		prompt string,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model to use for subsequent requests.
	SetModel(model string)
}

// TokenEstimator approximates token counts before a request is made.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig holds the settings shared by every provider.
type ClientConfig struct {
	// APIKey authenticates requests. Ollama ignores it.
	APIKey string

	// Model specifies which model to use. Providers fall back to their
	// own default when it is empty.
	Model string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// Timeout bounds the provider's HTTP client. Zero leaves the provider
	// default in place.
	Timeout time.Duration

	// TokenEstimator defaults to SimpleTokenEstimator.
	TokenEstimator TokenEstimator

	// Middleware is applied so that the first entry is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM to add cross-cutting behavior.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.LLMClient on top of a middleware-wrapped CoreLLM.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient creates a client for the named provider.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	factory, ok := GetProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("%w: %s (supported: %v)", ErrUnknownProvider, providerType, SupportedProviders())
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", providerType, err)
	}

	return NewClientFromCore(core, config), nil
}

// NewClientFromCore wraps an existing CoreLLM. Tests use it with
// MockCoreLLM; NewClient uses it after building the provider.
func NewClientFromCore(core CoreLLM, config ClientConfig) *Client {
	// Reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = SimpleTokenEstimator{}
	}

	return &Client{core: core, estimator: estimator}
}

// Complete sends a prompt to the LLM and returns the response text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage is Complete with input and output token counts.
// Failures are returned as *ports.LLMError wrapping the provider error.
func (c *Client) CompleteWithUsage(
	ctx context.Context,
	prompt string,
	options map[string]any,
) (string, int, int, error) {
	response, tokensIn, tokensOut, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		llmErr := ports.NewLLMError(c.GetModel(), "Complete", err)
		llmErr.TokensUsed = tokensIn + tokensOut
		return "", tokensIn, tokensOut, llmErr
	}
	return response, tokensIn, tokensOut, nil
}

// EstimateTokens returns an approximate token count for the given text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the model name reported by the provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator assumes roughly four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens rounds len(text)/4 up.
func (SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory registers a provider under name, replacing any
// previous registration.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[name] = factory
}

// GetProviderFactory returns the factory registered under name.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[name]
	return f, ok
}

// SupportedProviders lists the registered provider names in sorted order.
func SupportedProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Sorted(maps.Keys(providerFactories))
}
