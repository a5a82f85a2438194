package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-ragqa/infrastructure/llm"
	"github.com/ahrav/go-ragqa/internal/ports"
)

const (
	// OllamaDefaultModel is the small sentence embedding model the index
	// is built with by default.
	OllamaDefaultModel = "all-minilm"

	// OllamaDefaultBaseURL is a local Ollama server.
	OllamaDefaultBaseURL = "http://localhost:11434"

	ollamaDefaultTimeout = 60 * time.Second
)

// OllamaEmbedder calls Ollama's native /api/embed endpoint, which accepts a
// batch of inputs in one request.
type OllamaEmbedder struct {
	httpClient *http.Client
	endpoint   string
	model      string
	batchSize  int
	dim        atomic.Int64
	classifier *llm.ErrorClassifier
}

var _ ports.Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// NewOllamaEmbedder creates an embedder for a local or remote Ollama server.
func NewOllamaEmbedder(cfg Config) (*OllamaEmbedder, error) {
	base := cfg.BaseURL
	if base == "" {
		base = OllamaDefaultBaseURL
	}
	base, err := llm.ValidateBaseURL(base)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = OllamaDefaultModel
	}
	timeout := llm.ValidateTimeout(cfg.Timeout)
	if timeout == 0 {
		timeout = ollamaDefaultTimeout
	}

	e := &OllamaEmbedder{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSuffix(base, "/") + "/api/embed",
		model:      model,
		batchSize:  cfg.BatchSize,
		classifier: &llm.ErrorClassifier{Provider: "ollama-embeddings"},
	}
	e.dim.Store(int64(cfg.Dimension))
	return e, nil
}

// Embed returns the embedding of one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch posts texts to /api/embed in batches, preserving order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.batchSize) {
		vecs, err := e.post(ctx, batch)
		if err != nil {
			return nil, ports.NewEmbeddingError("ollama", e.model, len(batch), err)
		}
		out = append(out, vecs...)
	}

	dim, err := checkDimensions(out)
	if err != nil {
		return nil, ports.NewEmbeddingError("ollama", e.model, len(texts), err)
	}
	if dim > 0 {
		e.dim.Store(int64(dim))
	}
	return out, nil
}

func (e *OllamaEmbedder) post(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, e.classifier.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, e.classifier.ClassifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ollamaErrorResponse
		msg := strings.TrimSpace(string(payload))
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, e.classifier.ClassifyHTTPError(resp.StatusCode, msg, nil)
	}

	var decoded ollamaEmbedResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w: %w", ports.ErrInvalidResponse, err)
	}
	if len(decoded.Embeddings) != len(batch) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs: %w",
			len(decoded.Embeddings), len(batch), ports.ErrInvalidResponse)
	}
	return decoded.Embeddings, nil
}

// Dimension returns the vector length, or 0 before the first call when
// none was configured.
func (e *OllamaEmbedder) Dimension() int { return int(e.dim.Load()) }

// Name returns "ollama/<model>".
func (e *OllamaEmbedder) Name() string { return "ollama/" + e.model }
