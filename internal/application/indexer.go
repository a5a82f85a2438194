package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-ragqa/infrastructure/embedding"
	"github.com/ahrav/go-ragqa/infrastructure/ingest"
	"github.com/ahrav/go-ragqa/infrastructure/middleware"
	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/logging"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// Metric names recorded by the Indexer.
const (
	MetricDocumentsLoaded = middleware.MetricDocumentsLoaded
	MetricChunksIndexed   = middleware.MetricChunksIndexed
	MetricStoreChunks     = "store_chunks"
)

// DocumentSource lists and reads the files to index.
type DocumentSource interface {
	Files(ctx context.Context) ([]string, error)
	LoadFile(path string) ([]domain.Document, error)
}

// Splitter turns pages into chunks.
type Splitter interface {
	SplitDocuments(docs []domain.Document) []domain.Chunk
}

// IndexStats summarizes one indexing run.
type IndexStats struct {
	Files    int
	Pages    int
	Chunks   int
	Duration time.Duration
}

// Indexer loads documents, splits them, embeds the chunks and writes them
// to the vector store. Re-indexing a file replaces its previous chunks.
// It implements ingest.ChangeHandler so a Watcher can drive it.
type Indexer struct {
	source    DocumentSource
	splitter  Splitter
	embedder  ports.Embedder
	store     ports.VectorStore
	workers   int
	batchSize int
	metrics   ports.MetricsCollector
	logger    *slog.Logger
}

var _ ingest.ChangeHandler = (*Indexer)(nil)

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithIndexWorkers sets how many files are processed concurrently.
func WithIndexWorkers(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithEmbedBatchSize sets how many chunks go into one EmbedBatch call.
func WithEmbedBatchSize(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithIndexerMetrics records document and chunk counters.
func WithIndexerMetrics(m ports.MetricsCollector) IndexerOption {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithIndexerLogger sets the logger. The default is slog.Default().
func WithIndexerLogger(l *slog.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = l }
}

// NewIndexer creates an Indexer. All four dependencies are required.
func NewIndexer(
	source DocumentSource,
	splitter Splitter,
	embedder ports.Embedder,
	store ports.VectorStore,
	opts ...IndexerOption,
) (*Indexer, error) {
	if source == nil || splitter == nil {
		return nil, errors.New("indexer requires a document source and a splitter")
	}
	if embedder == nil {
		return nil, errors.New("indexer requires an embedder")
	}
	if store == nil {
		return nil, errors.New("indexer requires a vector store")
	}

	ix := &Indexer{
		source:    source,
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		workers:   4,
		batchSize: embedding.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = logging.OrDefault(ix.logger)
	return ix, nil
}

// Index processes every file the source lists. It stops at the first
// failing file.
func (ix *Indexer) Index(ctx context.Context) (IndexStats, error) {
	start := time.Now()

	files, err := ix.source.Files(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("listing documents: %w", err)
	}
	if len(files) == 0 {
		return IndexStats{}, ingest.ErrNoDocuments
	}

	var pages, chunks atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	for _, path := range files {
		g.Go(func() error {
			p, c, err := ix.indexFile(gctx, path)
			if err != nil {
				return err
			}
			pages.Add(int64(p))
			chunks.Add(int64(c))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IndexStats{}, err
	}

	stats := IndexStats{
		Files:    len(files),
		Pages:    int(pages.Load()),
		Chunks:   int(chunks.Load()),
		Duration: time.Since(start),
	}
	ix.logger.InfoContext(ctx, "indexing complete",
		"files", stats.Files,
		"pages", stats.Pages,
		"chunks", stats.Chunks,
		"embedder", ix.embedder.Name(),
		"duration", stats.Duration)

	if ix.metrics != nil {
		if total, err := ix.store.Count(ctx); err == nil {
			ix.metrics.RecordGauge(MetricStoreChunks, float64(total), map[string]string{"unit": "indexer"})
		}
	}
	return stats, nil
}

// IndexFile re-indexes one file.
func (ix *Indexer) IndexFile(ctx context.Context, path string) error {
	_, chunks, err := ix.indexFile(ctx, path)
	if err != nil {
		return err
	}
	ix.logger.InfoContext(ctx, "file indexed", "path", path, "chunks", chunks)
	return nil
}

// RemoveFile drops every chunk of path from the store.
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	if err := ix.store.DeleteBySource(ctx, path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	ix.logger.InfoContext(ctx, "file removed from index", "path", path)
	return nil
}

func (ix *Indexer) indexFile(ctx context.Context, path string) (int, int, error) {
	docs, err := ix.source.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted between listing and reading.
			return 0, 0, ix.store.DeleteBySource(ctx, path)
		}
		return 0, 0, err
	}

	chunks := ix.splitter.SplitDocuments(docs)
	if err := ix.embedChunks(ctx, chunks); err != nil {
		return 0, 0, fmt.Errorf("embedding %s: %w", path, err)
	}

	if err := ix.store.DeleteBySource(ctx, path); err != nil {
		return 0, 0, fmt.Errorf("clearing %s: %w", path, err)
	}
	if len(chunks) > 0 {
		if err := ix.store.Upsert(ctx, chunks); err != nil {
			return 0, 0, fmt.Errorf("storing %s: %w", path, err)
		}
	}

	if ix.metrics != nil {
		labels := map[string]string{"unit": "indexer"}
		ix.metrics.RecordCounter(MetricDocumentsLoaded, float64(len(docs)), labels)
		ix.metrics.RecordCounter(MetricChunksIndexed, float64(len(chunks)), labels)
	}
	ix.logger.DebugContext(ctx, "file processed", "path", path, "pages", len(docs), "chunks", len(chunks))
	return len(docs), len(chunks), nil
}

// embedChunks fills in the Embedding of every chunk, batchSize texts per
// request.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := min(start+ix.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
	}
	return nil
}
