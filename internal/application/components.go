package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-ragqa/infrastructure/cache"
	"github.com/ahrav/go-ragqa/infrastructure/embedding"
	"github.com/ahrav/go-ragqa/infrastructure/ingest"
	"github.com/ahrav/go-ragqa/infrastructure/llm"
	"github.com/ahrav/go-ragqa/infrastructure/middleware"
	"github.com/ahrav/go-ragqa/infrastructure/units"
	"github.com/ahrav/go-ragqa/infrastructure/vectorstore"
	"github.com/ahrav/go-ragqa/internal/logging"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// Components holds the infrastructure built from a Config and creates the
// application services on top of it.
type Components struct {
	Config   *Config
	Logger   *slog.Logger
	Metrics  *middleware.PrometheusMetrics
	LLM      ports.LLMClient
	Embedder ports.Embedder
	Store    ports.VectorStore
	Registry *DefaultUnitRegistry
}

// NewComponents builds the language model client with the standard
// middleware chain, the embedder (cached when embedding.cache_size is set)
// and the vector store. Metrics are registered with reg; nil selects the
// default registerer.
func NewComponents(ctx context.Context, cfg *Config, logger *slog.Logger, reg prometheus.Registerer) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	logger = logging.OrDefault(logger)
	metrics := middleware.NewPrometheusMetrics(reg)

	clientCfg := cfg.LLM.ClientConfig()
	clientCfg.Middleware = llm.StandardMiddleware(cfg.LLM.Provider, cfg.LLM.Resilience(), metrics, metrics)
	client, err := llm.NewClient(cfg.LLM.Provider, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	embedder, err := embedding.New(ctx, cfg.Embedding.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cache.NewMemoryStore(cfg.Embedding.CacheSize), cfg.Embedding.CacheTTL, logger)
	}

	store, err := vectorstore.New(ctx, cfg.Store.VectorStoreConfig(embedder.Dimension()))
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	logger.Debug("components ready",
		"llm_provider", cfg.LLM.Provider,
		"llm_model", client.GetModel(),
		"embedder", embedder.Name(),
		"store", cfg.Store.Driver)

	return &Components{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		LLM:      client,
		Embedder: embedder,
		Store:    store,
		Registry: NewDefaultUnitRegistry(units.Deps{LLM: client, Embedder: embedder, Store: store}),
	}, nil
}

// Close releases the vector store.
func (c *Components) Close() error {
	return c.Store.Close()
}

// NewLoader returns a loader over the configured document directory.
func (c *Components) NewLoader() (*ingest.Loader, error) {
	in := c.Config.Ingest
	return ingest.NewLoader(in.DocsDir, in.Patterns, in.Lowercase)
}

// NewIndexer returns an indexer over loader with the configured chunking.
func (c *Components) NewIndexer(loader *ingest.Loader) (*Indexer, error) {
	in := c.Config.Ingest
	splitter, err := ingest.NewRecursiveSplitter(in.ChunkSize, in.ChunkOverlap, in.Separators)
	if err != nil {
		return nil, err
	}
	return NewIndexer(loader, splitter, c.Embedder, c.Store,
		WithIndexWorkers(in.Workers),
		WithEmbedBatchSize(c.Config.Embedding.BatchSize),
		WithIndexerMetrics(c.Metrics),
		WithIndexerLogger(c.Logger))
}

// NewWatcher returns a watcher that re-indexes changed files through ix.
func (c *Components) NewWatcher(loader *ingest.Loader, ix *Indexer) *ingest.Watcher {
	return ingest.NewWatcher(loader, ix, c.Config.Ingest.Debounce, c.Logger)
}

// NewChatbot returns the chat service.
func (c *Components) NewChatbot() (*Chatbot, error) {
	return NewChatbot(c.Registry,
		WithChatTopK(c.Config.Retrieval.ChatTopK),
		WithUnitOverrides(c.Config.UnitOverrides()),
		WithChatbotMetrics(c.Metrics),
		WithChatbotLogger(c.Logger))
}

// NewBatchEvaluator returns the evaluation service.
func (c *Components) NewBatchEvaluator() (*BatchEvaluator, error) {
	return NewBatchEvaluator(c.Registry,
		WithEvalTopK(c.Config.Retrieval.EvalTopK),
		WithEvalConcurrency(c.Config.Evaluation.Concurrency),
		WithEvalUnitOverrides(c.Config.UnitOverrides()),
		WithEvalMetrics(c.Metrics),
		WithEvalLogger(c.Logger))
}
