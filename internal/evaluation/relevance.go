package evaluation

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
	"github.com/ahrav/go-ragqa/internal/vecmath"
)

// DefaultRelevanceThreshold is the cutoff used for both the semantic and the
// lexical signal.
const DefaultRelevanceThreshold = 0.5

var (
	// ErrNilEmbedder is returned when a RelevanceJudge is built without an
	// embedder.
	ErrNilEmbedder = errors.New("relevance judge requires an embedder")

	// ErrInvalidThreshold is returned for thresholds outside [0,1].
	ErrInvalidThreshold = errors.New("relevance threshold must be within [0,1]")

	// ErrEmbeddingCount is returned when a batch embedding call returns a
	// different number of vectors than texts.
	ErrEmbeddingCount = errors.New("embedder returned wrong number of vectors")
)

// wordPattern matches runs of two or more word characters, the same tokens a
// standard bag-of-words vectorizer extracts.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// WordTokenizer is the default lexical tokenizer. It expects lowercased input.
type WordTokenizer struct{}

// Tokenize returns the words of text in order, duplicates included.
func (WordTokenizer) Tokenize(text string) []string {
	return wordPattern.FindAllString(text, -1)
}

var _ ports.Tokenizer = WordTokenizer{}

// RelevanceJudge decides whether a retrieved chunk is relevant to a reference
// answer. A chunk is relevant when its embedding is close to the answer's
// embedding or when it contains enough of the answer's words.
type RelevanceJudge struct {
	embedder          ports.Embedder
	tokenizer         ports.Tokenizer
	semanticThreshold float64
	lexicalThreshold  float64
}

// JudgeOption customizes a RelevanceJudge.
type JudgeOption func(*RelevanceJudge)

// WithTokenizer replaces the default WordTokenizer.
func WithTokenizer(t ports.Tokenizer) JudgeOption {
	return func(j *RelevanceJudge) { j.tokenizer = t }
}

// WithThresholds overrides the semantic and lexical thresholds.
func WithThresholds(semantic, lexical float64) JudgeOption {
	return func(j *RelevanceJudge) {
		j.semanticThreshold = semantic
		j.lexicalThreshold = lexical
	}
}

// NewRelevanceJudge builds a judge around embedder. Both thresholds default
// to DefaultRelevanceThreshold.
func NewRelevanceJudge(embedder ports.Embedder, opts ...JudgeOption) (*RelevanceJudge, error) {
	if embedder == nil {
		return nil, ErrNilEmbedder
	}
	j := &RelevanceJudge{
		embedder:          embedder,
		tokenizer:         WordTokenizer{},
		semanticThreshold: DefaultRelevanceThreshold,
		lexicalThreshold:  DefaultRelevanceThreshold,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.tokenizer == nil {
		j.tokenizer = WordTokenizer{}
	}
	for _, th := range []float64{j.semanticThreshold, j.lexicalThreshold} {
		if th < 0 || th > 1 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, th)
		}
	}
	return j, nil
}

// IsRelevant returns 1 if chunk is relevant to expected and 0 otherwise.
// Embedding failures are returned to the caller.
func (j *RelevanceJudge) IsRelevant(ctx context.Context, chunk, expected string) (int, error) {
	chunkVec, err := j.embedder.Embed(ctx, chunk)
	if err != nil {
		return 0, fmt.Errorf("embedding chunk: %w", err)
	}
	expectedVec, err := j.embedder.Embed(ctx, expected)
	if err != nil {
		return 0, fmt.Errorf("embedding expected answer: %w", err)
	}
	return j.combine(chunkVec, expectedVec, chunk, expected), nil
}

// Judge scores every chunk against expected, preserving order. The expected
// answer is embedded once and the chunks in a single batch.
func (j *RelevanceJudge) Judge(ctx context.Context, chunks []string, expected string) ([]domain.ScoredChunk, error) {
	if len(chunks) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	expectedVec, err := j.embedder.Embed(ctx, expected)
	if err != nil {
		return nil, fmt.Errorf("embedding expected answer: %w", err)
	}
	chunkVecs, err := j.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(chunkVecs) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d for %d chunks", ErrEmbeddingCount, len(chunkVecs), len(chunks))
	}

	scored := make([]domain.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = domain.ScoredChunk{
			Content:  c,
			Relevant: j.combine(chunkVecs[i], expectedVec, c, expected),
		}
	}
	return scored, nil
}

func (j *RelevanceJudge) combine(chunkVec, expectedVec []float32, chunk, expected string) int {
	if j.semanticSignal(chunkVec, expectedVec) || j.lexicalSignal(chunk, expected) {
		return 1
	}
	return 0
}

func (j *RelevanceJudge) semanticSignal(chunkVec, expectedVec []float32) bool {
	return vecmath.Cosine(chunkVec, expectedVec) >= j.semanticThreshold
}

// lexicalSignal is the share of distinct expected-answer tokens present in
// the chunk. It is false when the expected answer has no tokens.
func (j *RelevanceJudge) lexicalSignal(chunk, expected string) bool {
	expTokens := j.tokenSet(expected)
	if len(expTokens) == 0 {
		return false
	}
	chunkTokens := j.tokenSet(chunk)

	common := 0
	for tok := range expTokens {
		if _, ok := chunkTokens[tok]; ok {
			common++
		}
	}
	return float64(common)/float64(len(expTokens)) >= j.lexicalThreshold
}

func (j *RelevanceJudge) tokenSet(text string) map[string]struct{} {
	tokens := j.tokenizer.Tokenize(cases.Lower(language.Und).String(text))
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Flags extracts the relevance flags of scored chunks in order.
func Flags(scored []domain.ScoredChunk) []int {
	flags := make([]int, len(scored))
	for i, s := range scored {
		flags[i] = s.Relevant
	}
	return flags
}
