// Package embedding turns text into fixed-length vectors for the memory
// store. Embed never fails: when the backend is unavailable it returns a
// zero vector of the configured length.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/MarkAustinGrow/marvins-memory/pkg/llm"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

type Config struct {
	Client     llm.EmbeddingClient
	Dimensions int
	// CacheSize bounds the number of cached vectors. Zero disables caching.
	CacheSize int
	Logger    logging.Logger
}

type Embedder struct {
	client     llm.EmbeddingClient
	dimensions int
	cache      *ristretto.Cache
	logger     logging.Logger
}

func New(cfg Config) (*Embedder, error) {
	if cfg.Client == nil {
		return nil, errors.New("embedding: client is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding: invalid dimensions %d", cfg.Dimensions)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	e := &Embedder{client: cfg.Client, dimensions: cfg.Dimensions, logger: cfg.Logger}
	if cfg.CacheSize > 0 {
		// Every entry costs 1, so MaxCost is an entry count.
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters:        int64(cfg.CacheSize) * 10,
			MaxCost:            int64(cfg.CacheSize),
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding: create cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the vector for text, or a zero vector when the backend
// fails or answers with the wrong length. Fallback vectors are not cached.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	key := strings.TrimSpace(text)
	if v, ok := e.cached(key); ok {
		embedCalls.WithLabelValues("cached").Inc()
		return v
	}

	vecs, err := e.client.Embed(ctx, []string{text})
	if err == nil && (len(vecs) != 1 || len(vecs[0]) != e.dimensions) {
		got := 0
		if len(vecs) > 0 {
			got = len(vecs[0])
		}
		err = fmt.Errorf("unexpected embedding length %d, want %d", got, e.dimensions)
	}
	if err != nil {
		embedCalls.WithLabelValues("fallback").Inc()
		e.logger.WithError(err).WithField("text_length", len(text)).Warn("Embedding failed, using zero vector")
		return make([]float32, e.dimensions)
	}

	embedCalls.WithLabelValues("ok").Inc()
	if e.cache != nil {
		e.cache.Set(key, vecs[0], 1)
	}
	return copyVector(vecs[0])
}

func (e *Embedder) cached(key string) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}
	v, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return copyVector(vec), true
}

// Close releases the cache goroutines.
func (e *Embedder) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// IsZero reports whether v is a fallback vector.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
