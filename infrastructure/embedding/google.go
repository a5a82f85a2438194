package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-ragqa/infrastructure/llm"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// GoogleDefaultModel is used when Config.Model is empty.
const GoogleDefaultModel = "text-embedding-004"

// GoogleEmbedder calls the Gemini embedContent API.
type GoogleEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	batchSize  int
	dim        atomic.Int64
	classifier *llm.ErrorClassifier
}

var _ ports.Embedder = (*GoogleEmbedder)(nil)

// NewGoogleEmbedder creates a Gemini embedder. An API key is required.
func NewGoogleEmbedder(ctx context.Context, cfg Config) (*GoogleEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrEmptyAPIKey
	}
	client, err := llm.NewGenAIClient(ctx, llm.ClientConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = GoogleDefaultModel
	}
	e := &GoogleEmbedder{
		client:     client,
		model:      model,
		dimensions: cfg.Dimension,
		batchSize:  cfg.BatchSize,
		classifier: &llm.ErrorClassifier{Provider: "google-embeddings"},
	}
	e.dim.Store(int64(cfg.Dimension))
	return e, nil
}

// Embed returns the embedding of one text.
func (e *GoogleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch embeds texts in provider-sized batches, preserving order.
func (e *GoogleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var config *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := int32(min(e.dimensions, math.MaxInt32))
		config = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.batchSize) {
		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = genai.NewContentFromText(text, genai.RoleUser)
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, config)
		if err != nil {
			return nil, ports.NewEmbeddingError("google", e.model, len(batch), e.classify(err))
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, ports.NewEmbeddingError("google", e.model, len(batch),
				fmt.Errorf("got %d embeddings: %w", len(resp.Embeddings), ports.ErrInvalidResponse))
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
	}

	dim, err := checkDimensions(out)
	if err != nil {
		return nil, ports.NewEmbeddingError("google", e.model, len(texts), err)
	}
	if dim > 0 {
		e.dim.Store(int64(dim))
	}
	return out, nil
}

func (e *GoogleEmbedder) classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return e.classifier.ClassifyHTTPError(apiErr.Code, apiErr.Message, err)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return e.classifier.ClassifyHTTPError(genaiErr.Code, genaiErr.Message, err)
	}
	return e.classifier.ClassifyTransportError(err)
}

// Dimension returns the vector length, or 0 before the first call when
// none was configured.
func (e *GoogleEmbedder) Dimension() int { return int(e.dim.Load()) }

// Name returns "google/<model>".
func (e *GoogleEmbedder) Name() string { return "google/" + e.model }
