package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const defaultSimilarTopK = 4

type KnowledgeUseCase struct {
	embedder ports.Embedder
	store    ports.KnowledgeStore
}

func NewKnowledgeUseCase(embedder ports.Embedder, store ports.KnowledgeStore) *KnowledgeUseCase {
	return &KnowledgeUseCase{embedder: embedder, store: store}
}

func (uc *KnowledgeUseCase) CreatePeptide(ctx context.Context, peptide domain.Peptide) (*domain.KnowledgeItem, error) {
	peptide = trimPeptide(peptide)
	if err := peptide.Validate(); err != nil {
		return nil, err
	}
	existing, err := uc.store.GetByExactName(ctx, peptide.Name)
	if err != nil {
		return nil, fmt.Errorf("lookup peptide: %w", err)
	}
	if existing != nil {
		return nil, domain.WrapError(domain.ErrAlreadyExists, "create peptide", fmt.Errorf("peptide %q already exists", peptide.Name))
	}
	return uc.embedAndStore(ctx, peptide)
}

// ReplacePeptide embeds the new version first and only then swaps it in for
// every item stored under name. If the insert fails after the delete, the
// previous item is written back.
func (uc *KnowledgeUseCase) ReplacePeptide(ctx context.Context, name string, peptide domain.Peptide) (*domain.KnowledgeItem, error) {
	name = strings.TrimSpace(name)
	peptide = trimPeptide(peptide)
	if peptide.Name == "" {
		peptide.Name = name
	}
	if err := peptide.Validate(); err != nil {
		return nil, err
	}

	previous, err := uc.store.GetByExactName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("lookup previous peptide: %w", err)
	}
	if previous == nil {
		return nil, domain.WrapError(domain.ErrKnowledgeNotFound, "replace peptide", fmt.Errorf("peptide %q not found", name))
	}

	item, err := uc.embedPeptide(ctx, peptide)
	if err != nil {
		return nil, err
	}

	deleted, err := uc.store.DeleteByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("delete previous peptide: %w", err)
	}
	if err := uc.store.Upsert(ctx, item); err != nil {
		if restoreErr := uc.store.Upsert(ctx, *previous); restoreErr != nil {
			slog.Error("peptide_restore_failed", "name", name, "error", restoreErr)
			return nil, fmt.Errorf("store replacement for %q after deleting %d item(s), previous version lost: %w", name, deleted, err)
		}
		return nil, fmt.Errorf("store replacement for %q, previous version restored: %w", name, err)
	}
	slog.Info("peptide_replaced", "name", name, "new_name", item.Name, "deleted", deleted, "id", item.ID)
	return &item, nil
}

func (uc *KnowledgeUseCase) DeletePeptide(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete peptide", fmt.Errorf("name is required"))
	}
	deleted, err := uc.store.DeleteByName(ctx, name)
	if err != nil {
		return fmt.Errorf("delete peptide: %w", err)
	}
	if deleted == 0 {
		return domain.WrapError(domain.ErrKnowledgeNotFound, "delete peptide", fmt.Errorf("peptide %q not found", name))
	}
	return nil
}

func (uc *KnowledgeUseCase) GetPeptide(ctx context.Context, name string) (*domain.KnowledgeItem, error) {
	item, err := uc.store.GetByExactName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("get peptide: %w", err)
	}
	if item == nil {
		return nil, domain.WrapError(domain.ErrKnowledgeNotFound, "get peptide", fmt.Errorf("peptide %q not found", name))
	}
	return item, nil
}

// FindSimilar searches with the stored vector of name and drops name itself.
func (uc *KnowledgeUseCase) FindSimilar(ctx context.Context, name string, topK int) ([]domain.SimilarPeptide, error) {
	if topK <= 0 {
		topK = defaultSimilarTopK
	}
	target, err := uc.GetPeptide(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(target.Vector) == 0 {
		return nil, fmt.Errorf("peptide %q has no stored vector", target.Name)
	}

	hits, err := uc.store.Search(ctx, target.Vector, topK+1, 0)
	if err != nil {
		return nil, fmt.Errorf("search similar peptides: %w", err)
	}
	out := make([]domain.SimilarPeptide, 0, topK)
	for _, hit := range hits {
		if hit.Item.Name == target.Name {
			continue
		}
		overview, _ := hit.Item.Metadata["overview"].(string)
		out = append(out, domain.SimilarPeptide{
			Name:            hit.Item.Name,
			Overview:        overview,
			SimilarityScore: hit.Score,
		})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func (uc *KnowledgeUseCase) embedAndStore(ctx context.Context, peptide domain.Peptide) (*domain.KnowledgeItem, error) {
	item, err := uc.embedPeptide(ctx, peptide)
	if err != nil {
		return nil, err
	}
	if err := uc.store.Upsert(ctx, item); err != nil {
		return nil, fmt.Errorf("store peptide: %w", err)
	}
	slog.Info("peptide_stored", "name", item.Name, "id", item.ID)
	return &item, nil
}

func (uc *KnowledgeUseCase) embedPeptide(ctx context.Context, peptide domain.Peptide) (domain.KnowledgeItem, error) {
	text := peptide.Text()
	vectors, err := uc.embedder.Embed(ctx, []string{text})
	if err != nil {
		return domain.KnowledgeItem{}, fmt.Errorf("embed peptide: %w", err)
	}
	if len(vectors) != 1 {
		return domain.KnowledgeItem{}, fmt.Errorf("embed peptide: expected 1 vector, got %d", len(vectors))
	}
	return domain.KnowledgeItem{
		ID:          uuid.NewString(),
		Name:        peptide.Name,
		Vector:      vectors[0],
		TextContent: text,
		Metadata:    peptide.Metadata(),
	}, nil
}

func trimPeptide(p domain.Peptide) domain.Peptide {
	return domain.Peptide{
		Name:                    strings.TrimSpace(p.Name),
		Overview:                strings.TrimSpace(p.Overview),
		MechanismOfActions:      strings.TrimSpace(p.MechanismOfActions),
		PotentialResearchFields: strings.TrimSpace(p.PotentialResearchFields),
	}
}
