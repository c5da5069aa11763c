package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

func TestCreatePeptideEmbedsText(t *testing.T) {
	store := newKnowledgeStoreFake()
	embedder := &countingEmbedderFake{vector: []float32{0.1, 0.2}}
	uc := NewKnowledgeUseCase(embedder, store)

	item, err := uc.CreatePeptide(context.Background(), domain.Peptide{
		Name:               " BPC-157 ",
		Overview:           "healing",
		MechanismOfActions: "angiogenesis",
	})
	if err != nil {
		t.Fatalf("CreatePeptide() error = %v", err)
	}
	if item.Name != "BPC-157" || item.ID == "" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if !strings.HasPrefix(item.TextContent, "Name: BPC-157\nOverview: healing\nMechanism of Actions: angiogenesis") {
		t.Fatalf("unexpected text content %q", item.TextContent)
	}
	if store.upserts != 1 || len(store.items["BPC-157"].Vector) != 2 {
		t.Fatalf("expected stored vector")
	}
}

func TestCreatePeptideRejectsDuplicateAndEmptyName(t *testing.T) {
	store := newKnowledgeStoreFake()
	store.items["TB-500"] = domain.KnowledgeItem{Name: "TB-500"}
	uc := NewKnowledgeUseCase(&countingEmbedderFake{vector: []float32{1}}, store)

	if _, err := uc.CreatePeptide(context.Background(), domain.Peptide{Name: "TB-500"}); !domain.IsKind(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := uc.CreatePeptide(context.Background(), domain.Peptide{Name: "  "}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReplacePeptideDeletesThenInserts(t *testing.T) {
	store := newKnowledgeStoreFake()
	store.items["BPC-157"] = domain.KnowledgeItem{ID: "old", Name: "BPC-157", TextContent: "old"}
	embedder := &countingEmbedderFake{vector: []float32{0.5}}
	uc := NewKnowledgeUseCase(embedder, store)

	item, err := uc.ReplacePeptide(context.Background(), "BPC-157", domain.Peptide{Overview: "new overview"})
	if err != nil {
		t.Fatalf("ReplacePeptide() error = %v", err)
	}
	if item.ID == "old" || !strings.Contains(store.items["BPC-157"].TextContent, "new overview") {
		t.Fatalf("expected full replacement, got %+v", store.items["BPC-157"])
	}
	if store.upserts != 1 || len(store.items["BPC-157"].Vector) != 1 {
		t.Fatalf("expected re-embedded insert, got %+v", store.items["BPC-157"])
	}

	if _, err := uc.ReplacePeptide(context.Background(), "missing", domain.Peptide{Name: "missing"}); !domain.IsKind(err, domain.ErrKnowledgeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReplacePeptideKeepsOldVersionWhenEmbeddingFails(t *testing.T) {
	store := newKnowledgeStoreFake()
	uc := NewKnowledgeUseCase(&countingEmbedderFake{vector: []float32{0.3}}, store)
	if _, err := uc.CreatePeptide(context.Background(), domain.Peptide{Name: "BPC-157", Overview: "original"}); err != nil {
		t.Fatalf("CreatePeptide() error = %v", err)
	}

	failing := NewKnowledgeUseCase(&countingEmbedderFake{err: errors.New("openai down")}, store)
	if _, err := failing.ReplacePeptide(context.Background(), "BPC-157", domain.Peptide{Overview: "rewritten"}); err == nil {
		t.Fatalf("expected embed error")
	}
	stored, ok := store.items["BPC-157"]
	if !ok || !strings.Contains(stored.TextContent, "original") {
		t.Fatalf("previous version must survive a failed embed, got %+v (present=%v)", stored, ok)
	}
}

func TestReplacePeptideRestoresOldVersionWhenInsertFails(t *testing.T) {
	store := newKnowledgeStoreFake()
	store.items["TB-500"] = domain.KnowledgeItem{ID: "old", Name: "TB-500", TextContent: "old", Vector: []float32{1}}
	store.failUpserts = 1
	uc := NewKnowledgeUseCase(&countingEmbedderFake{vector: []float32{0.5}}, store)

	_, err := uc.ReplacePeptide(context.Background(), "TB-500", domain.Peptide{Overview: "new"})
	if err == nil || !strings.Contains(err.Error(), "previous version restored") {
		t.Fatalf("expected restore notice in error, got %v", err)
	}
	if got := store.items["TB-500"]; got.ID != "old" {
		t.Fatalf("expected previous item written back, got %+v", got)
	}
}

func TestDeleteAndGetPeptide(t *testing.T) {
	store := newKnowledgeStoreFake()
	store.items["BPC-157"] = domain.KnowledgeItem{Name: "BPC-157"}
	uc := NewKnowledgeUseCase(&countingEmbedderFake{}, store)

	if _, err := uc.GetPeptide(context.Background(), "BPC-157"); err != nil {
		t.Fatalf("GetPeptide() error = %v", err)
	}
	if err := uc.DeletePeptide(context.Background(), "BPC-157"); err != nil {
		t.Fatalf("DeletePeptide() error = %v", err)
	}
	if err := uc.DeletePeptide(context.Background(), "BPC-157"); !domain.IsKind(err, domain.ErrKnowledgeNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := uc.GetPeptide(context.Background(), "BPC-157"); !domain.IsKind(err, domain.ErrKnowledgeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindSimilarExcludesSelf(t *testing.T) {
	store := newKnowledgeStoreFake()
	store.items["BPC-157"] = domain.KnowledgeItem{Name: "BPC-157", Vector: []float32{1, 0}}
	store.hits = []domain.VectorHit{
		{Item: domain.KnowledgeItem{Name: "BPC-157"}, Score: 1},
		{Item: domain.KnowledgeItem{Name: "TB-500", Metadata: map[string]any{"overview": "repair"}}, Score: 0.8},
		{Item: domain.KnowledgeItem{Name: "GHK-Cu"}, Score: 0.7},
	}
	uc := NewKnowledgeUseCase(&countingEmbedderFake{}, store)

	similar, err := uc.FindSimilar(context.Background(), "BPC-157", 0)
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if store.lastLimit != 5 {
		t.Fatalf("expected top_k+1 search, got limit %d", store.lastLimit)
	}
	if len(similar) != 2 || similar[0].Name != "TB-500" || similar[0].Overview != "repair" {
		t.Fatalf("unexpected similar list: %+v", similar)
	}
}

func TestFindSimilarPropagatesSearchError(t *testing.T) {
	store := newKnowledgeStoreFake()
	store.items["BPC-157"] = domain.KnowledgeItem{Name: "BPC-157", Vector: []float32{1}}
	store.searchErr = errors.New("qdrant down")
	uc := NewKnowledgeUseCase(&countingEmbedderFake{}, store)
	if _, err := uc.FindSimilar(context.Background(), "BPC-157", 2); err == nil {
		t.Fatalf("expected error")
	}
}
