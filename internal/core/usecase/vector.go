package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

// VectorKnowledgeTier looks up the closest knowledge item for a query.
type VectorKnowledgeTier struct {
	embedder ports.Embedder
	store    ports.KnowledgeStore
	minScore float64
}

func NewVectorKnowledgeTier(embedder ports.Embedder, store ports.KnowledgeStore, minScore float64) *VectorKnowledgeTier {
	if minScore < 0 {
		minScore = 0
	}
	return &VectorKnowledgeTier{embedder: embedder, store: store, minScore: minScore}
}

// Lookup tries an exact name match for the entity hint first, then the
// nearest neighbour of the query embedding.
func (t *VectorKnowledgeTier) Lookup(ctx context.Context, query, entityHint string) domain.VectorResult {
	if t == nil || t.store == nil || t.embedder == nil {
		return domain.VectorResult{
			Status: domain.TierEmpty,
			Err:    domain.WrapError(domain.ErrNotConfigured, "vector lookup", fmt.Errorf("knowledge store missing")),
		}
	}

	if hint := strings.TrimSpace(entityHint); hint != "" {
		item, err := t.store.GetByExactName(ctx, hint)
		switch {
		case err != nil:
			slog.Warn("vector_exact_lookup_failed", "name", hint, "error", err)
		case item != nil:
			slog.Info("vector_exact_match", "name", item.Name)
			return domain.VectorResult{
				Status: domain.TierFound,
				Best:   domain.VectorHit{Item: *item, Score: 1.0},
				Exact:  true,
			}
		}
	}

	vector, err := t.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Warn("vector_embed_failed", "error", err)
		return domain.VectorResult{Status: domain.TierError, Err: fmt.Errorf("embed query: %w", err)}
	}

	hits, err := t.store.Search(ctx, vector, 1, t.minScore)
	if err != nil {
		slog.Warn("vector_search_failed", "error", err)
		return domain.VectorResult{Status: domain.TierError, Err: fmt.Errorf("search knowledge store: %w", err)}
	}
	if len(hits) == 0 {
		return domain.VectorResult{Status: domain.TierEmpty}
	}

	slog.Info("vector_best_match", "name", hits[0].Item.Name, "score", hits[0].Score)
	return domain.VectorResult{Status: domain.TierFound, Best: hits[0]}
}
