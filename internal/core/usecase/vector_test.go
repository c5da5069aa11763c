package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

func TestVectorTierPrefersExactNameMatch(t *testing.T) {
	store := newKnowledgeStoreFake()
	store.items["BPC-157"] = domain.KnowledgeItem{Name: "BPC-157", TextContent: "Body protection compound."}
	embedder := &countingEmbedderFake{vector: []float32{1, 0}}
	tier := NewVectorKnowledgeTier(embedder, store, 0)

	result := tier.Lookup(context.Background(), scenarioQuery, " BPC-157 ")
	if result.Status != domain.TierFound || !result.Exact {
		t.Fatalf("expected exact hit, got %+v", result)
	}
	if result.Best.Score != 1.0 || result.Best.Item.Name != "BPC-157" {
		t.Fatalf("unexpected best hit: %+v", result.Best)
	}
	if embedder.calls != 0 || store.searchCalls != 0 {
		t.Fatalf("exact match must skip embedding and search, got embeds=%d searches=%d", embedder.calls, store.searchCalls)
	}
}

func TestVectorTierFallsBackToNearestNeighbour(t *testing.T) {
	store := newKnowledgeStoreFake()
	store.hits = []domain.VectorHit{
		{Item: domain.KnowledgeItem{Name: "TB-500"}, Score: 0.81},
		{Item: domain.KnowledgeItem{Name: "GHK-Cu"}, Score: 0.40},
	}
	tier := NewVectorKnowledgeTier(&countingEmbedderFake{vector: []float32{0.3}}, store, -1)

	result := tier.Lookup(context.Background(), "what does thymosin beta 4 do", "Unknown")
	if result.Status != domain.TierFound || result.Exact {
		t.Fatalf("expected similarity hit, got %+v", result)
	}
	if result.Best.Item.Name != "TB-500" || store.lastLimit != 1 {
		t.Fatalf("expected top-1 search returning TB-500, got %+v limit=%d", result.Best, store.lastLimit)
	}
}

func TestVectorTierReportsEmptyAndErrors(t *testing.T) {
	empty := NewVectorKnowledgeTier(&countingEmbedderFake{vector: []float32{1}}, newKnowledgeStoreFake(), 0)
	if result := empty.Lookup(context.Background(), scenarioQuery, ""); result.Status != domain.TierEmpty {
		t.Fatalf("expected empty tier, got %+v", result)
	}

	embedFail := NewVectorKnowledgeTier(&countingEmbedderFake{err: errors.New("quota")}, newKnowledgeStoreFake(), 0)
	if result := embedFail.Lookup(context.Background(), scenarioQuery, ""); result.Status != domain.TierError || result.Err == nil {
		t.Fatalf("expected embed error, got %+v", result)
	}

	store := newKnowledgeStoreFake()
	store.searchErr = errors.New("qdrant down")
	searchFail := NewVectorKnowledgeTier(&countingEmbedderFake{vector: []float32{1}}, store, 0)
	if result := searchFail.Lookup(context.Background(), scenarioQuery, ""); result.Status != domain.TierError {
		t.Fatalf("expected search error, got %+v", result)
	}

	var unconfigured *VectorKnowledgeTier
	if result := unconfigured.Lookup(context.Background(), scenarioQuery, ""); !domain.IsKind(result.Err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %+v", result)
	}
}
