package units

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

var _ ports.Unit = (*ValidationUnit)(nil)

// Configuration constants for the ValidationUnit.
const (
	DefaultValidationMaxTokens = 16
	DefaultValidationTimeout   = time.Minute
)

// DefaultValidationPrompt asks for a bare Yes or No. Both answers are
// lowercased before rendering.
const DefaultValidationPrompt = `You are an intelligent assistant helping to validate the predicted answer by comparing it to the expected answer.

Expected Answer:
{{.Expected}}

Predicted Answer:
{{.Predicted}}

Please respond with "Yes" if the full or part of the Expected Answer is present in the Predicted Answer. Otherwise, respond with "No". Don't print anything else than "Yes" or "No".`

// ValidationConfig defines the configuration parameters for the ValidationUnit.
type ValidationConfig struct {
	// PromptTemplate is a Go template over {{.Expected}} and {{.Predicted}}.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template" validate:"required,min=20"`

	// Temperature should stay at zero for a stable verdict.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=1.0"`

	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=1,max=2000"`

	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"required,min=1s,max=600s"`
}

// DefaultValidationConfig returns the Yes/No validation defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		PromptTemplate: DefaultValidationPrompt,
		Temperature:    0,
		MaxTokens:      DefaultValidationMaxTokens,
		Timeout:        DefaultValidationTimeout,
	}
}

// ValidationUnit asks the model whether the predicted answer contains the
// expected one. It does nothing when the state has no expected answer,
// which is the case for ad hoc chat questions.
//
// State requirements:
//   - domain.KeyAnswer: the predicted answer
//   - domain.KeyExpected (optional): the reference answer
//
// Writes domain.KeyValidation with the trimmed model response and
// domain.KeyMatchFlag.
type ValidationUnit struct {
	name           string
	config         ValidationConfig
	llmClient      ports.LLMClient
	promptTemplate *template.Template
	tracer         trace.Tracer
}

// NewValidationUnit creates a new ValidationUnit.
func NewValidationUnit(name string, llmClient ports.LLMClient, config ValidationConfig) (*ValidationUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if llmClient == nil {
		return nil, fmt.Errorf("unit %s: %w", name, ErrLLMClientNil)
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}

	tmpl, err := template.New("validationPrompt").Funcs(GetTemplateFuncMap()).Parse(config.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("unit %s: failed to parse prompt template: %w", name, err)
	}

	return &ValidationUnit{
		name:           name,
		config:         config,
		llmClient:      llmClient,
		promptTemplate: tmpl,
		tracer:         otel.Tracer("validation-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (vu *ValidationUnit) Name() string { return vu.name }

// Execute runs the validation prompt.
func (vu *ValidationUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	expected, ok := domain.Get(state, domain.KeyExpected)
	if !ok {
		return state, nil
	}
	predicted, ok := domain.Get(state, domain.KeyAnswer)
	if !ok {
		return state, domain.MissingKey(domain.KeyAnswer, "validate")
	}

	ctx, span := vu.tracer.Start(ctx, "ValidationUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "validation"),
			attribute.String("unit.id", vu.name),
			attribute.String("llm.model", vu.llmClient.GetModel()),
		),
	)
	defer span.End()

	response, err := vu.Check(ctx, expected, predicted)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}
	match := IsMatch(response)
	span.SetAttributes(attribute.Bool("eval.match", match))

	next := state.WithMultiple(map[string]any{
		domain.KeyValidation.Name(): response,
		domain.KeyMatchFlag.Name():  match,
	})
	tokens := estimateTokens(vu.llmClient, response)
	return next.RecordUsage(int64(tokens), 1), nil
}

// Check asks the model to compare expected and predicted and returns the
// trimmed response.
func (vu *ValidationUnit) Check(ctx context.Context, expected, predicted string) (string, error) {
	prompt, err := vu.buildPrompt(expected, predicted)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, vu.config.Timeout)
	defer cancel()

	response, err := vu.llmClient.Complete(ctx, prompt, map[string]any{
		"temperature": vu.config.Temperature,
		"max_tokens":  vu.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("unit %s: LLM call failed: %w", vu.name, err)
	}
	return strings.TrimSpace(response), nil
}

func (vu *ValidationUnit) buildPrompt(expected, predicted string) (string, error) {
	lower := cases.Lower(language.Und)
	data := struct {
		Expected  string
		Predicted string
	}{
		Expected:  lower.String(expected),
		Predicted: lower.String(predicted),
	}

	var buf bytes.Buffer
	if err := vu.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("unit %s: %w: %v", vu.name, ErrTemplateExecution, err)
	}
	return buf.String(), nil
}

// Validate checks if the unit is properly configured and ready for execution.
func (vu *ValidationUnit) Validate() error {
	if vu.llmClient == nil {
		return ErrLLMClientNil
	}
	if err := validateConfig(vu.config); err != nil {
		return err
	}
	if vu.llmClient.GetModel() == "" {
		return fmt.Errorf("unit %s: LLM client model is not configured", vu.name)
	}
	return nil
}

// IsMatch reports whether a validation response is affirmative: it is
// true iff the lowercased response contains "yes".
func IsMatch(response string) bool {
	return strings.Contains(cases.Lower(language.Und).String(response), "yes")
}

// NewValidationFromConfig creates a ValidationUnit from a configuration map.
func NewValidationFromConfig(id string, config map[string]any, deps Deps) (ports.Unit, error) {
	cfg, err := decodeConfig(config, DefaultValidationConfig())
	if err != nil {
		return nil, err
	}
	return NewValidationUnit(id, deps.LLM, cfg)
}
