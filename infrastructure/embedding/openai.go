package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-ragqa/infrastructure/llm"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// OpenAIDefaultModel is used when Config.Model is empty.
const OpenAIDefaultModel = "text-embedding-3-small"

// OpenAIEmbedder calls the /embeddings endpoint of an OpenAI-compatible
// server. Pointing BaseURL at http://localhost:11434/v1 uses Ollama.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	dim        atomic.Int64
	classifier *llm.ErrorClassifier
}

var _ ports.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder from cfg. An API key is required
// only when BaseURL is unset.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, llm.ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		u, err := llm.ValidateBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientConfig.BaseURL = u
	}
	if timeout := llm.ValidateTimeout(cfg.Timeout); timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	e := &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: cfg.Dimension,
		batchSize:  cfg.BatchSize,
		classifier: &llm.ErrorClassifier{Provider: "openai-embeddings"},
	}
	e.dim.Store(int64(cfg.Dimension))
	return e, nil
}

// Embed returns the embedding of one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch sends texts in batches and reorders results by their index.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.batchSize) {
		req := openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		}
		if e.dimensions > 0 {
			req.Dimensions = e.dimensions
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, ports.NewEmbeddingError("openai", e.model, len(batch), e.classify(err))
		}
		if len(resp.Data) != len(batch) {
			return nil, ports.NewEmbeddingError("openai", e.model, len(batch),
				fmt.Errorf("got %d embeddings: %w", len(resp.Data), ports.ErrInvalidResponse))
		}

		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}

	dim, err := checkDimensions(out)
	if err != nil {
		return nil, ports.NewEmbeddingError("openai", e.model, len(texts), err)
	}
	if dim > 0 {
		e.dim.Store(int64(dim))
	}
	return out, nil
}

func (e *OpenAIEmbedder) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return e.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return e.classifier.ClassifyHTTPError(reqErr.HTTPStatusCode, reqErr.HTTPStatus, err)
	}
	return e.classifier.ClassifyTransportError(err)
}

// Dimension returns the configured dimension, or the observed one after
// the first successful call.
func (e *OpenAIEmbedder) Dimension() int { return int(e.dim.Load()) }

// Name returns "openai/<model>".
func (e *OpenAIEmbedder) Name() string { return "openai/" + e.model }
