package embed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/semdex/internal/cache"
)

// CachedEmbedder wraps an underlying Embedder with a content-addressed
// byte store so an embedding is computed for a given text at most once.
// Keys are derived from (namespace, text), entries are persisted before a
// computed vector is returned (write-through), and a failed cache read or
// write degrades to live computation instead of failing the call.
type CachedEmbedder struct {
	underlying Embedder
	store      *cache.Store
	namespace  string
	logger     *zap.Logger

	modelCalls    atomic.Int64
	textsComputed atomic.Int64
}

// NewCachedEmbedder creates a cache-backed embedder. The namespace
// partitions the store so unrelated corpora sharing a cache directory
// cannot observe each other's entries.
func NewCachedEmbedder(underlying Embedder, store *cache.Store, namespace string, logger *zap.Logger) (*CachedEmbedder, error) {
	if underlying == nil {
		return nil, fmt.Errorf("underlying embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		underlying: underlying,
		store:      store,
		namespace:  namespace,
		logger:     logger,
	}, nil
}

// Embed generates (or retrieves) the embedding for a single text.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns embeddings for texts in input order.
//
// Texts whose key is already in the store are served from it; the rest
// are deduplicated (identical texts within one call collapse to a single
// computation) and embedded in one underlying model call. Each computed
// vector is persisted individually, so a failed write costs one entry,
// not the batch.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	var missTexts []string
	var missKeys []string
	missPositions := make(map[string][]int)

	for i, text := range texts {
		key := cache.Key(e.namespace, text)

		vector, ok := e.lookup(key)
		if ok {
			results[i] = vector
			continue
		}

		if _, seen := missPositions[key]; !seen {
			missTexts = append(missTexts, text)
			missKeys = append(missKeys, key)
		}
		missPositions[key] = append(missPositions[key], i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := e.underlying.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embedding model call failed: %w", err)
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	e.modelCalls.Add(1)
	e.textsComputed.Add(int64(len(missTexts)))

	for j, vector := range vectors {
		key := missKeys[j]
		if err := e.store.Put(key, EncodeVector(vector)); err != nil {
			// The caller still gets the vector; only future runs lose
			// the benefit of this entry.
			e.logger.Warn("failed to persist cache entry",
				zap.String("key", key), zap.Error(err))
		}
		for _, pos := range missPositions[key] {
			results[pos] = vector
		}
	}

	return results, nil
}

// lookup reads and decodes one cached vector. Any failure, a missing
// entry, an I/O error, or a corrupt value, is treated as a miss.
func (e *CachedEmbedder) lookup(key string) ([]float32, bool) {
	data, err := e.store.Get(key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			e.logger.Warn("cache read failed, recomputing",
				zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	vector, err := DecodeVector(data)
	if err != nil {
		e.logger.Warn("corrupt cache entry, recomputing",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vector, true
}

// Dimension returns the underlying embedder's dimension.
func (e *CachedEmbedder) Dimension() int {
	return e.underlying.Dimension()
}

// ModelCalls reports how many times the underlying model was invoked.
func (e *CachedEmbedder) ModelCalls() int64 {
	return e.modelCalls.Load()
}

// TextsComputed reports how many unique texts were embedded by the model.
func (e *CachedEmbedder) TextsComputed() int64 {
	return e.textsComputed.Load()
}
