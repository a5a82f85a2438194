package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errSimulated is returned by MockCoreLLM when a failure is scripted
// without a specific error.
var errSimulated = errors.New("simulated failure")

// MockCoreLLM is a scriptable CoreLLM for middleware and client tests.
type MockCoreLLM struct {
	mu sync.Mutex

	Response      string
	TokensIn      int
	TokensOut     int
	Err           error
	Model         string
	ResponseDelay time.Duration

	// FailFirst makes the first FailFirst calls return Err, or a generic
	// failure when Err is nil, before succeeding.
	FailFirst int

	calls   int
	prompts []string
	opts    []map[string]any
}

// NewMockCoreLLM returns a mock that always succeeds.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// DoRequest records the call and returns the scripted response or error.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	delay := m.ResponseDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailFirst > 0 && call <= m.FailFirst {
		if m.Err != nil {
			return "", 0, 0, m.Err
		}
		return "", 0, 0, errSimulated
	}
	if m.FailFirst == 0 && m.Err != nil {
		return "", 0, 0, m.Err
	}
	return m.Response, m.TokensIn, m.TokensOut, nil
}

// GetModel returns Model.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel sets Model.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// Calls returns how many times DoRequest ran.
func (m *MockCoreLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent prompt, or "" before any call.
func (m *MockCoreLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// LastOpts returns the most recent options map.
func (m *MockCoreLLM) LastOpts() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.opts) == 0 {
		return nil
	}
	return m.opts[len(m.opts)-1]
}
