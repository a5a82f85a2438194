// Package testutils provides deterministic test doubles for the model and
// embedding ports, used by unit and integration tests across the module.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-ragqa/internal/ports"
)

// Prompt markers the mock recognizes. They match the default answer and
// validation prompts.
const (
	validationMarker = "validate the predicted answer"
	expectedHeader   = "Expected Answer:"
	predictedHeader  = "Predicted Answer:"
	contextHeader    = "Context:"
	questionHeader   = "Question:"

	// NotFoundResponse is returned for questions with no context.
	NotFoundResponse = "Can't find Information"
)

// MockLLMClient implements ports.LLMClient with deterministic behavior:
//   - validation prompts are answered "Yes" when the predicted answer
//     contains the expected one and "No" otherwise;
//   - question prompts return a registered response when the question
//     contains its pattern, else the first line of the context, else
//     NotFoundResponse;
//   - anything else returns the default response.
//
// It is safe for concurrent use and records every prompt it receives.
type MockLLMClient struct {
	model string

	mu        sync.Mutex
	responses []MockResponse
	prompts   []string
	err       error
}

// MockResponse maps a question pattern to a canned answer.
type MockResponse struct {
	// Pattern is matched case-insensitively against the question.
	Pattern string
	// Response is the text returned for matching questions.
	Response string
}

// NewMockLLMClient creates a mock reporting model as its model name.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{model: model}
}

// AddResponse registers a canned answer. Earlier patterns win.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
}

// SetError makes every subsequent call fail with err. Nil restores normal
// behavior.
func (m *MockLLMClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Prompts returns a copy of every prompt received so far.
func (m *MockLLMClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	err := m.err
	responses := m.responses
	m.mu.Unlock()

	if err != nil {
		return "", err
	}

	if strings.Contains(prompt, validationMarker) {
		return validationVerdict(prompt), nil
	}
	if strings.Contains(prompt, questionHeader) {
		return answerFor(prompt, responses), nil
	}
	return "This is a standard response for testing purposes.", nil
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string { return m.model }

func validationVerdict(prompt string) string {
	expected := strings.ToLower(section(prompt, expectedHeader, predictedHeader))
	predicted := strings.ToLower(section(prompt, predictedHeader, "Please respond"))
	if expected != "" && strings.Contains(predicted, expected) {
		return "Yes"
	}
	return "No"
}

func answerFor(prompt string, responses []MockResponse) string {
	question := strings.ToLower(section(prompt, questionHeader, "Provide short"))
	for _, r := range responses {
		if strings.Contains(question, strings.ToLower(r.Pattern)) {
			return r.Response
		}
	}

	passage := section(prompt, contextHeader, questionHeader)
	if passage == "" {
		return NotFoundResponse
	}
	first, _, _ := strings.Cut(passage, "\n")
	return strings.TrimSpace(first)
}

// section returns the trimmed text between start and end. A missing end
// extends the section to the end of the prompt.
func section(prompt, start, end string) string {
	_, after, ok := strings.Cut(prompt, start)
	if !ok {
		return ""
	}
	if before, _, ok := strings.Cut(after, end); ok {
		after = before
	}
	return strings.TrimSpace(after)
}

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)
