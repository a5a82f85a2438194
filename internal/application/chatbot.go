package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ahrav/go-ragqa/infrastructure/units"
	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/logging"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// Unit ids used inside the chat and evaluation pipelines.
const (
	unitIDRetrieve    = "retrieve"
	unitIDAnswer      = "answer"
	unitIDValidate    = "validate"
	unitIDAnswerScore = "score_answer"
	unitIDRelevance   = "judge_relevance"
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// Response is the chatbot's answer to one question.
type Response struct {
	Question string
	Answer   string
	// Sources are the base names of the retrieved files in rank order.
	Sources []string
	Chunks  []domain.RetrievedChunk
	Usage   domain.Usage
}

// Chatbot answers questions from the indexed documents.
type Chatbot struct {
	pipeline  *Pipeline
	validator ports.Unit
	topK      int
	logger    *slog.Logger

	mu         sync.RWMutex
	dictionary map[string]string
}

// ChatbotOption configures a Chatbot.
type ChatbotOption func(*chatbotOptions)

type chatbotOptions struct {
	topK      int
	overrides map[string]map[string]any
	metrics   ports.MetricsCollector
	logger    *slog.Logger
}

// WithChatTopK sets the default number of chunks to retrieve.
func WithChatTopK(k int) ChatbotOption {
	return func(o *chatbotOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithUnitOverrides passes per-unit-type configuration to the registry.
func WithUnitOverrides(overrides map[string]map[string]any) ChatbotOption {
	return func(o *chatbotOptions) { o.overrides = overrides }
}

// WithChatbotMetrics records per-unit latency and outcome.
func WithChatbotMetrics(m ports.MetricsCollector) ChatbotOption {
	return func(o *chatbotOptions) { o.metrics = m }
}

// WithChatbotLogger sets the logger.
func WithChatbotLogger(l *slog.Logger) ChatbotOption {
	return func(o *chatbotOptions) { o.logger = l }
}

// NewChatbot builds the retrieve then answer pipeline and the validation
// unit from registry.
func NewChatbot(registry ports.UnitRegistry, opts ...ChatbotOption) (*Chatbot, error) {
	o := chatbotOptions{topK: units.DefaultTopK}
	for _, opt := range opts {
		opt(&o)
	}

	retrieve, err := buildStep(registry, o.overrides, UnitTypeRetrieval, unitIDRetrieve, o.metrics)
	if err != nil {
		return nil, err
	}
	answer, err := buildStep(registry, o.overrides, UnitTypeAnswer, unitIDAnswer, o.metrics)
	if err != nil {
		return nil, err
	}
	validator, err := buildUnit(registry, o.overrides, UnitTypeValidation, unitIDValidate)
	if err != nil {
		return nil, err
	}

	pipeline, err := newPipeline("chat", retrieve, answer)
	if err != nil {
		return nil, err
	}

	return &Chatbot{
		pipeline:   pipeline,
		validator:  validator,
		topK:       o.topK,
		logger:     logging.OrDefault(o.logger),
		dictionary: make(map[string]string),
	}, nil
}

// Ask lowercases question, retrieves topK chunks and asks the model. A
// non-positive topK selects the configured default.
func (c *Chatbot) Ask(ctx context.Context, question string, topK int) (Response, error) {
	question = lowerText(strings.TrimSpace(question))
	if question == "" {
		return Response{}, ErrEmptyQuestion
	}
	if topK <= 0 {
		topK = c.topK
	}

	execID := uuid.NewString()
	ctx = logging.WithExecutionID(ctx, execID)
	log := logging.FromContext(ctx, c.logger)

	state := domain.NewState()
	state = domain.With(state, domain.KeyQuestion, question)
	state = domain.With(state, domain.KeyTopK, topK)
	state = domain.With(state, domain.KeyExecutionID, execID)

	final, err := c.pipeline.Execute(ctx, state)
	if err != nil {
		log.ErrorContext(ctx, "question failed", "error", err)
		return Response{}, err
	}

	resp := responseFromState(question, final)
	log.DebugContext(ctx, "question answered",
		"top_k", topK,
		"chunks", len(resp.Chunks),
		"tokens", resp.Usage.Tokens)
	return resp, nil
}

// ValidateAnswer asks the model whether predicted matches expected and
// returns the trimmed verdict and whether it is affirmative.
func (c *Chatbot) ValidateAnswer(ctx context.Context, expected, predicted string) (string, bool, error) {
	state := domain.NewState()
	state = domain.With(state, domain.KeyExpected, expected)
	state = domain.With(state, domain.KeyAnswer, predicted)

	final, err := c.validator.Execute(ctx, state)
	if err != nil {
		return "", false, err
	}
	verdict, _ := domain.Get(final, domain.KeyValidation)
	match, _ := domain.Get(final, domain.KeyMatchFlag)
	return verdict, match, nil
}

// LoadDictionary replaces the known question to answer mapping. Questions
// are lowercased.
func (c *Chatbot) LoadDictionary(queries []domain.QueryCase) {
	dict := make(map[string]string, len(queries))
	for _, q := range queries {
		dict[lowerText(strings.TrimSpace(q.Question))] = q.Answer
	}

	c.mu.Lock()
	c.dictionary = dict
	c.mu.Unlock()
}

// Expected returns the known answer for question, if any.
func (c *Chatbot) Expected(question string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	answer, ok := c.dictionary[lowerText(strings.TrimSpace(question))]
	return answer, ok
}

func responseFromState(question string, s domain.State) Response {
	answer, _ := domain.Get(s, domain.KeyAnswer)
	chunks, _ := domain.Get(s, domain.KeyChunks)
	return Response{
		Question: question,
		Answer:   answer,
		Sources:  domain.SourceNames(chunks),
		Chunks:   chunks,
		Usage:    s.GetUsage(),
	}
}

func buildUnit(
	registry ports.UnitRegistry,
	overrides map[string]map[string]any,
	unitType, id string,
) (ports.Unit, error) {
	unit, err := registry.CreateUnit(unitType, id, overrides[unitType])
	if err != nil {
		return nil, err
	}
	if err := unit.Validate(); err != nil {
		return nil, fmt.Errorf("unit %s: %w", id, err)
	}
	return unit, nil
}

func buildStep(
	registry ports.UnitRegistry,
	overrides map[string]map[string]any,
	unitType, id string,
	metrics ports.MetricsCollector,
) (*UnitAdapter, error) {
	unit, err := buildUnit(registry, overrides, unitType, id)
	if err != nil {
		return nil, err
	}
	return NewUnitAdapter(unit, id, metrics), nil
}

func newPipeline(id string, steps ...ports.Executable) (*Pipeline, error) {
	p := NewPipeline(id)
	for _, step := range steps {
		if err := p.Add(step); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// lowerText lowercases with Unicode case folding rules. A Caser is not
// safe for concurrent use, so each call gets its own.
func lowerText(s string) string {
	return cases.Lower(language.Und).String(s)
}
