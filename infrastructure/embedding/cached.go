package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-ragqa/internal/logging"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// CachedEmbedder memoizes another embedder's vectors in a ports.CacheStore.
// Concurrent requests for the same text share one provider call.
type CachedEmbedder struct {
	inner  ports.Embedder
	store  ports.CacheStore
	ttl    time.Duration
	sf     singleflight.Group
	logger *slog.Logger
}

var _ ports.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner. A zero ttl keeps entries until evicted.
func NewCachedEmbedder(inner ports.Embedder, store ports.CacheStore, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		logger: logging.OrDefault(logger),
	}
}

// cacheKey namespaces by embedder name so switching models never serves
// stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.Name() + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

// Embed serves text from the cache, or embeds it once even when several
// callers ask for it concurrently.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if v, ok := c.lookup(ctx, key); ok {
		return v, nil
	}

	res, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := c.lookup(ctx, key); ok {
			return v, nil
		}
		v, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(res.([]float32)), nil
}

// EmbedBatch serves hits from the cache and sends the distinct misses to
// the wrapped embedder in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missing := make(map[string][]int)
	var missTexts []string

	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if v, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = v
			continue
		}
		if _, seen := missing[keys[i]]; !seen {
			missTexts = append(missTexts, text)
		}
		missing[keys[i]] = append(missing[keys[i]], i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts: %w",
			c.inner.Name(), len(vecs), len(missTexts), ports.ErrInvalidResponse)
	}

	for j, text := range missTexts {
		key := c.cacheKey(text)
		c.save(ctx, key, vecs[j])
		for _, i := range missing[key] {
			out[i] = slices.Clone(vecs[j])
		}
	}
	return out, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	v, ok := raw.([]float32)
	if !ok {
		c.logger.Warn("embedding cache entry has unexpected type",
			"error", ports.NewCacheError(key, "get", ports.ErrCacheCorrupted))
		_ = c.store.Delete(ctx, key)
		return nil, false
	}
	return slices.Clone(v), true
}

func (c *CachedEmbedder) save(ctx context.Context, key string, v []float32) {
	if err := c.store.Set(ctx, key, slices.Clone(v), c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
}

// Dimension returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Name returns the wrapped embedder's name.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }
