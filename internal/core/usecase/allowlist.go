package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

// AllowList is a parsed, immutable set of allowed domain rules.
type AllowList struct {
	rules    []domain.AllowedDomainRule
	wildcard bool
}

func NewAllowList(patterns []string) AllowList {
	out := AllowList{rules: make([]domain.AllowedDomainRule, 0, len(patterns))}
	for _, p := range patterns {
		rule, ok := domain.ParseAllowedDomainRule(p)
		if !ok {
			continue
		}
		if rule.Kind == domain.RuleWildcard {
			out.wildcard = true
			continue
		}
		out.rules = append(out.rules, rule)
	}
	return out
}

func (a AllowList) HasGlobalWildcard() bool {
	return a.wildcard
}

func (a AllowList) Empty() bool {
	return !a.wildcard && len(a.rules) == 0
}

// MatchesDomain checks only the non-wildcard rules.
func (a AllowList) MatchesDomain(rawURL string) bool {
	host := domain.NormalizeHost(rawURL)
	if host == "" {
		return false
	}
	for _, rule := range a.rules {
		if host == rule.Domain || strings.HasSuffix(host, "."+rule.Domain) {
			return true
		}
	}
	return false
}

// Allows checks the domain rules first and then the global wildcard.
// Malformed URLs are never allowed.
func (a AllowList) Allows(rawURL string) bool {
	if a.MatchesDomain(rawURL) {
		return true
	}
	return a.wildcard && domain.NormalizeHost(rawURL) != ""
}

// AllowListLoader reads the current rule set from the repository.
type AllowListLoader struct {
	repo ports.AllowListRepository
}

func NewAllowListLoader(repo ports.AllowListRepository) *AllowListLoader {
	return &AllowListLoader{repo: repo}
}

func (l *AllowListLoader) Load(ctx context.Context) (AllowList, error) {
	if l == nil || l.repo == nil {
		return AllowList{}, fmt.Errorf("allow list: %w", domain.ErrNotConfigured)
	}
	items, err := l.repo.ListAllowedURLs(ctx)
	if err != nil {
		return AllowList{}, fmt.Errorf("list allowed urls: %w", err)
	}
	patterns := make([]string, 0, len(items))
	for _, item := range items {
		patterns = append(patterns, item.URL)
	}
	list := NewAllowList(patterns)
	slog.Debug("allow_list_loaded", "rules", len(list.rules), "wildcard", list.wildcard)
	return list, nil
}
