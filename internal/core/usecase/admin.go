package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const maxRestrictionLength = 1000

type AdminUseCase struct {
	allowList    ports.AllowListRepository
	restrictions ports.RestrictionRepository
	toggle       ports.ToggleRepository
}

func NewAdminUseCase(
	allowList ports.AllowListRepository,
	restrictions ports.RestrictionRepository,
	toggle ports.ToggleRepository,
) *AdminUseCase {
	return &AdminUseCase{allowList: allowList, restrictions: restrictions, toggle: toggle}
}

func (uc *AdminUseCase) ListAllowedURLs(ctx context.Context) ([]domain.AllowedURL, error) {
	items, err := uc.allowList.ListAllowedURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list allowed urls: %w", err)
	}
	return items, nil
}

// AddAllowedURL stores a bare domain, a full URL or "*". Patterns that cannot
// become a rule are rejected up front.
func (uc *AdminUseCase) AddAllowedURL(ctx context.Context, pattern, description string) (*domain.AllowedURL, error) {
	pattern = strings.TrimSpace(pattern)
	if _, ok := domain.ParseAllowedDomainRule(pattern); !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "add allowed url", fmt.Errorf("unsupported pattern %q", pattern))
	}
	item := &domain.AllowedURL{URL: pattern, Description: strings.TrimSpace(description)}
	if err := uc.allowList.CreateAllowedURL(ctx, item); err != nil {
		return nil, fmt.Errorf("create allowed url: %w", err)
	}
	return item, nil
}

func (uc *AdminUseCase) DeleteAllowedURL(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "delete allowed url", fmt.Errorf("invalid id %d", id))
	}
	return uc.allowList.DeleteAllowedURL(ctx, id)
}

func (uc *AdminUseCase) ListRestrictions(ctx context.Context) ([]domain.ChatRestriction, error) {
	items, err := uc.restrictions.ListRestrictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list restrictions: %w", err)
	}
	return items, nil
}

func (uc *AdminUseCase) AddRestriction(ctx context.Context, text string) (*domain.ChatRestriction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "add restriction", fmt.Errorf("restriction_text is required"))
	}
	if len([]rune(text)) > maxRestrictionLength {
		return nil, domain.WrapError(domain.ErrInvalidInput, "add restriction", fmt.Errorf("restriction_text exceeds %d characters", maxRestrictionLength))
	}
	item := &domain.ChatRestriction{RestrictionText: text}
	if err := uc.restrictions.CreateRestriction(ctx, item); err != nil {
		return nil, fmt.Errorf("create restriction: %w", err)
	}
	return item, nil
}

func (uc *AdminUseCase) DeleteRestriction(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "delete restriction", fmt.Errorf("invalid id %d", id))
	}
	return uc.restrictions.DeleteRestriction(ctx, id)
}

func (uc *AdminUseCase) ManagedSearchToggle(ctx context.Context) (domain.ManagedSearchToggle, error) {
	return uc.toggle.GetManagedSearchToggle(ctx)
}

func (uc *AdminUseCase) SetManagedSearchToggle(ctx context.Context, enabled bool) (domain.ManagedSearchToggle, error) {
	return uc.toggle.SetManagedSearchToggle(ctx, enabled)
}
