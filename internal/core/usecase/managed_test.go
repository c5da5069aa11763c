package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

type managedProviderFake struct {
	hits  []domain.SearchHit
	err   error
	calls int
	query string
}

func (f *managedProviderFake) Search(_ context.Context, query string) ([]domain.SearchHit, error) {
	f.calls++
	f.query = query
	return f.hits, f.err
}

type toggleRepoFake struct {
	enabled bool
	err     error
}

func (f *toggleRepoFake) GetManagedSearchToggle(context.Context) (domain.ManagedSearchToggle, error) {
	return domain.ManagedSearchToggle{Enabled: f.enabled}, f.err
}
func (f *toggleRepoFake) SetManagedSearchToggle(_ context.Context, enabled bool) (domain.ManagedSearchToggle, error) {
	f.enabled = enabled
	return domain.ManagedSearchToggle{Enabled: enabled}, nil
}

func TestManagedTierFiltersByDomain(t *testing.T) {
	provider := &managedProviderFake{hits: []domain.SearchHit{
		{URL: "https://examine.com/a", RawContent: "a", ProviderScore: 0.9},
		{URL: "https://blog.other.com/b", RawContent: "b", ProviderScore: 0.95},
		{URL: "https://pubs.ncbi.nlm.nih.gov/c", RawContent: "c", ProviderScore: 0.5},
	}}
	tier := NewManagedSearchTier(provider, NewAllowListLoader(&allowListRepoFake{items: allowedURLs("examine.com", "nih.gov")}), nil)

	res := tier.Fetch(context.Background(), "what is bpc-157", "")
	if res.Status != domain.TierFound || res.Mode != domain.SelectionDomainFilter {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Items) != 2 || res.Items[0].URL != "https://examine.com/a" {
		t.Fatalf("unexpected items: %+v", res.Items)
	}
	if len(res.AllURLs) != 3 {
		t.Fatalf("expected all urls recorded, got %v", res.AllURLs)
	}
	if math.Abs(res.AggregateScore-0.7) > 1e-9 {
		t.Fatalf("expected mean 0.7, got %f", res.AggregateScore)
	}
}

func TestManagedTierDedupesByHostAndPath(t *testing.T) {
	provider := &managedProviderFake{hits: []domain.SearchHit{
		{URL: "https://www.examine.com/bpc/?a=1", RawContent: "first", ProviderScore: 0.8},
		{URL: "https://examine.com/bpc?a=2#frag", RawContent: "second", ProviderScore: 0.6},
	}}
	tier := NewManagedSearchTier(provider, NewAllowListLoader(&allowListRepoFake{items: allowedURLs("examine.com")}), nil)

	res := tier.Fetch(context.Background(), "q", "")
	if len(res.Items) != 1 || res.Items[0].RawContent != "first" {
		t.Fatalf("expected first occurrence to survive, got %+v", res.Items)
	}
}

func TestManagedTierWildcardTakesTopFiveByScore(t *testing.T) {
	hits := make([]domain.SearchHit, 0, 8)
	for i := 0; i < 8; i++ {
		hits = append(hits, domain.SearchHit{
			URL:           "https://site" + string(rune('a'+i)) + ".com/",
			ProviderScore: float64(i) / 10,
		})
	}
	provider := &managedProviderFake{hits: hits}
	tier := NewManagedSearchTier(provider, NewAllowListLoader(&allowListRepoFake{items: allowedURLs("*")}), nil)

	res := tier.Fetch(context.Background(), "q", "")
	if res.Mode != domain.SelectionTopByScore {
		t.Fatalf("expected top-by-score mode, got %s", res.Mode)
	}
	if len(res.Items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(res.Items))
	}
	if res.Items[0].ProviderScore != 0.7 || res.Items[4].ProviderScore != 0.3 {
		t.Fatalf("unexpected ordering: %+v", res.Items)
	}
}

func TestManagedTierNoDomainMatchIsEmpty(t *testing.T) {
	provider := &managedProviderFake{hits: []domain.SearchHit{{URL: "https://other.com/x", ProviderScore: 1}}}
	tier := NewManagedSearchTier(provider, NewAllowListLoader(&allowListRepoFake{items: allowedURLs("examine.com")}), nil)

	res := tier.Fetch(context.Background(), "q", "")
	if res.Status != domain.TierEmpty || res.Err != nil {
		t.Fatalf("expected empty without error, got %+v", res)
	}
	if res.AggregateScore != 0 {
		t.Fatalf("expected zero aggregate score, got %f", res.AggregateScore)
	}
}

func TestManagedTierProviderErrorIsTagged(t *testing.T) {
	provider := &managedProviderFake{err: errors.New("502")}
	tier := NewManagedSearchTier(provider, NewAllowListLoader(&allowListRepoFake{}), nil)

	res := tier.Fetch(context.Background(), "q", "")
	if res.Status != domain.TierError || res.Err == nil {
		t.Fatalf("expected tagged error, got %+v", res)
	}
}

func TestManagedTierDisabledSkipsProvider(t *testing.T) {
	provider := &managedProviderFake{}
	tier := NewManagedSearchTier(provider, NewAllowListLoader(&allowListRepoFake{}), &toggleRepoFake{enabled: false})

	res := tier.Fetch(context.Background(), "q", "")
	if res.Status != domain.TierEmpty {
		t.Fatalf("expected empty, got %s", res.Status)
	}
	if provider.calls != 0 {
		t.Fatalf("provider must not be called when disabled")
	}
}

func TestManagedTierPrefixesEntityHint(t *testing.T) {
	provider := &managedProviderFake{}
	tier := NewManagedSearchTier(provider, NewAllowListLoader(&allowListRepoFake{}), &toggleRepoFake{enabled: true})
	tier.Fetch(context.Background(), "dosage", "TB-500")
	if provider.query != "TB-500 peptide dosage" {
		t.Fatalf("unexpected provider query %q", provider.query)
	}
}
