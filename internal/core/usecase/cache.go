package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	answerCachePrefix = "chat_cache:"
	scopeAll          = "all"
	statsSampleSize   = 5
)

// CacheKey derives the answer cache key. Scope is kept readable in the key
// so that one scope can be invalidated without touching the other.
func CacheKey(scope domain.CacheScope, query, hint string) string {
	parts := []string{string(scope), normalizeKeyPart(query)}
	if h := normalizeKeyPart(hint); h != "" {
		parts = append(parts, h)
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return answerCachePrefix + string(scope) + ":" + hex.EncodeToString(sum[:])
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CacheGateway is a best-effort answer cache. Store failures read as misses.
type CacheGateway struct {
	store      ports.KeyValueStore
	defaultTTL time.Duration
}

func NewCacheGateway(store ports.KeyValueStore, defaultTTL time.Duration) *CacheGateway {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &CacheGateway{store: store, defaultTTL: defaultTTL}
}

func (g *CacheGateway) Get(ctx context.Context, scope domain.CacheScope, query, hint string) (*domain.Answer, bool) {
	if g == nil || g.store == nil {
		return nil, false
	}
	key := CacheKey(scope, query, hint)
	raw, ok, err := g.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache_get_failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var answer domain.Answer
	if err := json.Unmarshal(raw, &answer); err != nil {
		slog.Warn("cache_entry_corrupt", "key", key, "error", err)
		return nil, false
	}
	return &answer, true
}

// Set stores the answer and reports whether the write succeeded.
func (g *CacheGateway) Set(ctx context.Context, scope domain.CacheScope, query, hint string, answer domain.Answer, ttl time.Duration) bool {
	if g == nil || g.store == nil {
		return false
	}
	if ttl <= 0 {
		ttl = g.defaultTTL
	}
	key := CacheKey(scope, query, hint)
	payload, err := json.Marshal(answer)
	if err != nil {
		slog.Warn("cache_encode_failed", "key", key, "error", err)
		return false
	}
	if err := g.store.SetEX(ctx, key, ttl, payload); err != nil {
		slog.Warn("cache_set_failed", "key", key, "error", err)
		return false
	}
	slog.Debug("cache_set", "key", key, "ttl_seconds", int(ttl.Seconds()))
	return true
}

// InvalidateAll deletes every entry of a scope; "" or "all" clears both scopes.
func (g *CacheGateway) InvalidateAll(ctx context.Context, scope string) (int, error) {
	if g == nil || g.store == nil {
		return 0, fmt.Errorf("cache: %w", domain.ErrNotConfigured)
	}
	pattern, err := scopePattern(scope)
	if err != nil {
		return 0, err
	}
	keys, err := g.store.Keys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("list cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := g.store.Del(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("delete cache keys: %w", err)
	}
	slog.Info("cache_invalidated", "scope", scope, "deleted", deleted)
	return deleted, nil
}

func (g *CacheGateway) Stats(ctx context.Context) domain.CacheStats {
	stats := domain.CacheStats{TTL: int(g.defaultTTL.Seconds()), Sample: []string{}}
	if g.store == nil {
		return stats
	}
	if err := g.store.Ping(ctx); err != nil {
		return stats
	}
	stats.Connected = true
	keys, err := g.store.Keys(ctx, answerCachePrefix+"*")
	if err != nil {
		return stats
	}
	stats.KeyCount = len(keys)
	if len(keys) > statsSampleSize {
		keys = keys[:statsSampleSize]
	}
	stats.Sample = keys
	return stats
}

func scopePattern(scope string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", scopeAll:
		return answerCachePrefix + "*", nil
	case string(domain.ScopeGeneral):
		return answerCachePrefix + string(domain.ScopeGeneral) + ":*", nil
	case string(domain.ScopeSpecific):
		return answerCachePrefix + string(domain.ScopeSpecific) + ":*", nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "invalidate cache", fmt.Errorf("unknown scope %q", scope))
	}
}
