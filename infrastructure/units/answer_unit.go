package units

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

var _ ports.Unit = (*AnswerUnit)(nil)

// Configuration constants for the AnswerUnit.
const (
	// DefaultAnswerMaxTokens is the default maximum tokens per answer.
	DefaultAnswerMaxTokens = 512
	// DefaultAnswerTimeout bounds one model call.
	DefaultAnswerTimeout = 2 * time.Minute
	// NotFoundAnswer is what the model is told to say when the context has
	// no answer.
	NotFoundAnswer = "Can't find Information"
)

// DefaultAnswerPrompt grounds the model in the retrieved context.
const DefaultAnswerPrompt = `You are an intelligent assistant helping to answer questions based on provided information. Use only the context provided to answer the question.

Context:
{{.Context}}

Question:
{{.Question}}

Provide short and concise answer as per the question. If the answer is not in the context, say "Can't find Information".`

// ErrTemplateExecution is returned when a prompt template fails to render.
var ErrTemplateExecution = errors.New("failed to execute prompt template")

// AnswerConfig defines the configuration parameters for the AnswerUnit.
type AnswerConfig struct {
	// Prompt is a Go template over {{.Context}} and {{.Question}}.
	// {{.Chunks}} exposes the retrieved chunks for custom layouts.
	Prompt string `yaml:"prompt" json:"prompt" validate:"required,min=10"`

	// System is sent as the system message when set.
	System string `yaml:"system" json:"system"`

	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=2.0"`

	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=10,max=16000"`

	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"required,min=1s,max=600s"`
}

// DefaultAnswerConfig returns an AnswerConfig with deterministic sampling.
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		Prompt:      DefaultAnswerPrompt,
		Temperature: 0,
		MaxTokens:   DefaultAnswerMaxTokens,
		Timeout:     DefaultAnswerTimeout,
	}
}

// answerPromptData is the template input of the answer prompt.
type answerPromptData struct {
	Context  string
	Question string
	Chunks   []domain.RetrievedChunk
}

// AnswerUnit asks the model to answer the question from the retrieved
// chunks. The unit is stateless and thread-safe.
//
// State requirements:
//   - domain.KeyQuestion: the question text
//   - domain.KeyChunks: retrieved context, possibly empty
//
// Writes domain.KeyAnswer and records model usage.
type AnswerUnit struct {
	name           string
	config         AnswerConfig
	llmClient      ports.LLMClient
	promptTemplate *template.Template
	tracer         trace.Tracer
}

// NewAnswerUnit creates a new AnswerUnit. It returns an error if the
// configuration is invalid or the client is missing.
func NewAnswerUnit(name string, llmClient ports.LLMClient, config AnswerConfig) (*AnswerUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if llmClient == nil {
		return nil, ErrLLMClientNil
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	tmpl, err := template.New("answerPrompt").Funcs(GetTemplateFuncMap()).Parse(config.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}

	return &AnswerUnit{
		name:           name,
		config:         config,
		llmClient:      llmClient,
		promptTemplate: tmpl,
		tracer:         otel.Tracer("answer-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (au *AnswerUnit) Name() string { return au.name }

// Execute renders the prompt and calls the model once.
func (au *AnswerUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	question, ok := domain.Get(state, domain.KeyQuestion)
	if !ok {
		return state, domain.MissingKey(domain.KeyQuestion, "answer")
	}
	if strings.TrimSpace(question) == "" {
		return state, ErrQuestionEmpty
	}
	chunks, _ := domain.Get(state, domain.KeyChunks)

	ctx, span := au.tracer.Start(ctx, "AnswerUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "answer"),
			attribute.String("unit.id", au.name),
			attribute.String("llm.model", au.llmClient.GetModel()),
			attribute.Int("context.chunks", len(chunks)),
		),
	)
	defer span.End()

	prompt, err := au.RenderPrompt(question, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	ctx, cancel := context.WithTimeout(ctx, au.config.Timeout)
	defer cancel()

	options := map[string]any{
		"temperature": au.config.Temperature,
		"max_tokens":  au.config.MaxTokens,
	}
	if au.config.System != "" {
		options["system"] = au.config.System
	}

	response, err := au.llmClient.Complete(ctx, prompt, options)
	if err != nil {
		err = fmt.Errorf("unit %s: LLM call failed: %w", au.name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}
	answer := strings.TrimSpace(response)

	tokens := estimateTokens(au.llmClient, prompt) + estimateTokens(au.llmClient, response)
	span.SetAttributes(
		attribute.Int("answer.length", len(answer)),
		attribute.Int("llm.tokens", tokens),
		attribute.Bool("answer.not_found", strings.Contains(answer, NotFoundAnswer)),
	)

	next := domain.With(state, domain.KeyAnswer, answer)
	return next.RecordUsage(int64(tokens), 1), nil
}

// RenderPrompt builds the prompt for question and chunks. Chunk contents
// are joined by blank lines.
func (au *AnswerUnit) RenderPrompt(question string, chunks []domain.RetrievedChunk) (string, error) {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}

	var buf bytes.Buffer
	data := answerPromptData{
		Context:  strings.Join(parts, "\n\n"),
		Question: question,
		Chunks:   chunks,
	}
	if err := au.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateExecution, err)
	}
	return buf.String(), nil
}

// Validate checks if the unit is properly configured and ready for execution.
func (au *AnswerUnit) Validate() error {
	if au.llmClient == nil {
		return ErrLLMClientNil
	}
	if err := validateConfig(au.config); err != nil {
		return err
	}
	if au.llmClient.GetModel() == "" {
		return fmt.Errorf("LLM client model is not configured")
	}
	return nil
}

// NewAnswerFromConfig creates an AnswerUnit from a configuration map.
func NewAnswerFromConfig(id string, config map[string]any, deps Deps) (ports.Unit, error) {
	cfg, err := decodeConfig(config, DefaultAnswerConfig())
	if err != nil {
		return nil, err
	}
	return NewAnswerUnit(id, deps.LLM, cfg)
}

// estimateTokens falls back to zero when the client cannot estimate.
func estimateTokens(client ports.LLMClient, text string) int {
	n, err := client.EstimateTokens(text)
	if err != nil {
		return 0
	}
	return n
}
