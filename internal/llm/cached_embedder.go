package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/metrics"
	"github.com/review-agent/backend/pkg/logger"
	"github.com/review-agent/backend/pkg/utils"
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error
}

// CachedEmbedder serves embeddings from a cache and falls through to the
// wrapped embedder on a miss. Cache errors are logged and treated as misses.
type CachedEmbedder struct {
	next  Embedder
	cache EmbeddingCache
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(next Embedder, cache EmbeddingCache, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache, model: model, ttl: ttl}
}

// key is namespaced by model only; the cache applies its own prefix.
func (e *CachedEmbedder) key(text string) string {
	return e.model + ":" + utils.HashString(text)
}

func (e *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if cached, err := e.cache.GetEmbedding(ctx, key); err == nil && len(cached) > 0 {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err := e.next.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, key, embedding)
	return embedding, nil
}

func (e *CachedEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if cached, err := e.cache.GetEmbedding(ctx, e.key(text)); err == nil && len(cached) > 0 {
			out[i] = cached
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	metrics.CacheHits.WithLabelValues("embedding").Add(float64(len(texts) - len(missing)))
	metrics.CacheMisses.WithLabelValues("embedding").Add(float64(len(missing)))

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := e.next.GenerateBatchEmbeddings(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(fresh), len(missing))
	}
	for j, embedding := range fresh {
		out[missingIdx[j]] = embedding
		e.store(ctx, e.key(missing[j]), embedding)
	}
	return out, nil
}

func (e *CachedEmbedder) store(ctx context.Context, key string, embedding []float32) {
	if err := e.cache.SetEmbedding(ctx, key, embedding, e.ttl); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}
}
