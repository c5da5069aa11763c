package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const embeddingCachePrefix = "embedding_cache:"

// CachedEmbedder memoizes query embeddings. Vectors for a given model and
// text never change, so entries live much longer than answers.
type CachedEmbedder struct {
	next  ports.Embedder
	store ports.KeyValueStore
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(next ports.Embedder, store ports.KeyValueStore, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CachedEmbedder{next: next, store: store, model: model, ttl: ttl}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.Embed(ctx, texts)
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if e.store != nil {
		raw, ok, err := e.store.Get(ctx, key)
		if err != nil {
			slog.Warn("embedding_cache_get_failed", "error", err)
		} else if ok {
			var vector []float32
			if err := json.Unmarshal(raw, &vector); err == nil && len(vector) > 0 {
				return vector, nil
			}
		}
	}

	vector, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	if e.store != nil {
		payload, err := json.Marshal(vector)
		if err == nil {
			if err := e.store.SetEX(ctx, key, e.ttl, payload); err != nil {
				slog.Warn("embedding_cache_set_failed", "error", err)
			}
		}
	}
	return vector, nil
}

func (e *CachedEmbedder) key(text string) string {
	sum := md5.Sum([]byte(e.model + "|" + text))
	return embeddingCachePrefix + hex.EncodeToString(sum[:])
}
