package usecase

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const managedTopByScore = 5

// ManagedSearchTier queries the managed search API and keeps either the
// allow-listed hits or, under a global wildcard, the best scored ones.
type ManagedSearchTier struct {
	provider  ports.ManagedSearchProvider
	allowList *AllowListLoader
	toggle    ports.ToggleRepository
}

func NewManagedSearchTier(
	provider ports.ManagedSearchProvider,
	allowList *AllowListLoader,
	toggle ports.ToggleRepository,
) *ManagedSearchTier {
	return &ManagedSearchTier{
		provider:  provider,
		allowList: allowList,
		toggle:    toggle,
	}
}

func (t *ManagedSearchTier) Fetch(ctx context.Context, query, entityHint string) domain.ManagedResult {
	if t == nil || t.provider == nil {
		return domain.ManagedResult{Status: domain.TierEmpty, Err: domain.ErrNotConfigured}
	}
	if !t.enabled(ctx) {
		slog.Info("managed_search_disabled")
		return domain.ManagedResult{Status: domain.TierEmpty}
	}

	hits, err := t.provider.Search(ctx, managedSearchQuery(query, entityHint))
	if err != nil {
		slog.Warn("managed_search_failed", "error", err)
		return domain.ManagedResult{Status: domain.TierError, Err: err}
	}

	allURLs := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.URL != "" {
			allURLs = append(allURLs, h.URL)
		}
	}
	slog.Info("managed_search_urls", "count", len(allURLs), "urls", allURLs)

	rules, err := t.allowList.Load(ctx)
	if err != nil {
		// Without rules nothing can match; the cascade escalates.
		slog.Warn("managed_allow_list_unavailable", "error", err)
	}

	selected, mode := selectManagedHits(hits, rules)
	selected = dedupeHits(selected)

	result := domain.ManagedResult{
		Items:          selected,
		AllURLs:        allURLs,
		Mode:           mode,
		AggregateScore: meanScore(selected),
		Status:         domain.TierFound,
	}
	if len(selected) == 0 {
		result.Status = domain.TierEmpty
	}
	slog.Info("managed_search_selected", "mode", mode, "selected", len(selected), "aggregate_score", result.AggregateScore)
	return result
}

func (t *ManagedSearchTier) enabled(ctx context.Context) bool {
	if t.toggle == nil {
		return true
	}
	state, err := t.toggle.GetManagedSearchToggle(ctx)
	if err != nil {
		slog.Warn("managed_toggle_unavailable", "error", err)
		return true
	}
	return state.Enabled
}

func managedSearchQuery(query, entityHint string) string {
	hint := strings.TrimSpace(entityHint)
	if hint == "" {
		return query
	}
	return hint + " peptide " + query
}

// selectManagedHits applies the either/or policy: top-K by score under a
// global wildcard, strict domain filtering otherwise.
func selectManagedHits(hits []domain.SearchHit, rules AllowList) ([]domain.SearchHit, domain.SelectionMode) {
	if rules.HasGlobalWildcard() {
		sorted := make([]domain.SearchHit, len(hits))
		copy(sorted, hits)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ProviderScore > sorted[j].ProviderScore
		})
		if len(sorted) > managedTopByScore {
			sorted = sorted[:managedTopByScore]
		}
		return sorted, domain.SelectionTopByScore
	}

	out := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		if rules.MatchesDomain(h.URL) {
			out = append(out, h)
		}
	}
	return out, domain.SelectionDomainFilter
}

func dedupeHits(hits []domain.SearchHit) []domain.SearchHit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		key := dedupeKey(h.URL)
		if key != "" {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, h)
	}
	return out
}

// dedupeKey is host without "www." plus the path without trailing slash.
func dedupeKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		p = "/"
	}
	return host + p
}

func meanScore(hits []domain.SearchHit) float64 {
	if len(hits) == 0 {
		return 0
	}
	var total float64
	for _, h := range hits {
		total += h.ProviderScore
	}
	return total / float64(len(hits))
}
