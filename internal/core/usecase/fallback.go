package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

type FallbackConfig struct {
	NumResults       int
	MaxPages         int
	MaxChunksPerPage int
	TopChunks        int
	// MinConfidence is a percentage in [0, 100].
	MinConfidence float64
}

func (c FallbackConfig) normalize() FallbackConfig {
	out := c
	if out.NumResults <= 0 {
		out.NumResults = 50
	}
	if out.MaxPages <= 0 {
		out.MaxPages = 5
	}
	if out.MaxChunksPerPage <= 0 {
		out.MaxChunksPerPage = 5
	}
	if out.TopChunks <= 0 {
		out.TopChunks = 10
	}
	if out.MinConfidence < 0 {
		out.MinConfidence = 0
	}
	return out
}

// FallbackSearchTier scrapes allow-listed pages from a broad search and
// re-ranks their chunks against the query by embedding similarity.
type FallbackSearchTier struct {
	provider  ports.BroadSearchProvider
	scraper   ports.PageScraper
	allowList *AllowListLoader
	chunker   ports.Chunker
	embedder  ports.Embedder
	cfg       FallbackConfig
}

func NewFallbackSearchTier(
	provider ports.BroadSearchProvider,
	scraper ports.PageScraper,
	allowList *AllowListLoader,
	chunker ports.Chunker,
	embedder ports.Embedder,
	cfg FallbackConfig,
) *FallbackSearchTier {
	return &FallbackSearchTier{
		provider:  provider,
		scraper:   scraper,
		allowList: allowList,
		chunker:   chunker,
		embedder:  embedder,
		cfg:       cfg.normalize(),
	}
}

type scrapedPage struct {
	url     string
	title   string
	content string
}

func (t *FallbackSearchTier) Fetch(ctx context.Context, query, entityHint string) domain.FallbackResult {
	if t == nil || t.provider == nil || t.scraper == nil || t.embedder == nil {
		return fallbackError(domain.WrapError(domain.ErrNotConfigured, "fallback search", fmt.Errorf("broad search provider missing")))
	}

	searchQuery := strings.TrimSpace(strings.TrimSpace(entityHint) + " " + query)
	results, err := t.provider.Search(ctx, searchQuery, t.cfg.NumResults)
	if err != nil {
		return fallbackError(fmt.Errorf("broad search: %w", err))
	}

	rules, err := t.allowList.Load(ctx)
	if err != nil {
		slog.Warn("fallback_allow_list_unavailable", "error", err)
	}

	pages := t.scrapeAllowed(ctx, results, rules)
	if len(pages) == 0 {
		slog.Info("fallback_no_sources", "results", len(results))
		return domain.FallbackResult{Status: domain.TierEmpty, Reason: domain.NoInfoNoSources}
	}

	chunks := t.chunkPages(pages)
	if len(chunks) == 0 {
		return domain.FallbackResult{Status: domain.TierEmpty, Reason: domain.NoInfoNoSources}
	}

	ranked, err := t.rank(ctx, query, chunks)
	if err != nil {
		return fallbackError(err)
	}

	kept := make([]domain.ContentChunk, 0, len(ranked))
	for _, c := range ranked {
		if c.ConfidencePercentage >= t.cfg.MinConfidence {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		best := 0.0
		if len(ranked) > 0 {
			best = ranked[0].ConfidencePercentage
		}
		slog.Warn("fallback_below_confidence", "min_confidence", t.cfg.MinConfidence, "best_confidence", best)
		return domain.FallbackResult{Status: domain.TierEmpty, Reason: domain.NoInfoBelowConfidence}
	}
	if len(kept) > t.cfg.TopChunks {
		kept = kept[:t.cfg.TopChunks]
	}

	sites := sourceSites(kept, pages)
	slog.Info("fallback_selected", "pages", len(pages), "chunks", len(chunks), "kept", len(kept), "sites", len(sites))
	return domain.FallbackResult{Status: domain.TierFound, Chunks: kept, SourceSites: sites}
}

func (t *FallbackSearchTier) scrapeAllowed(ctx context.Context, results []domain.OrganicResult, rules AllowList) []scrapedPage {
	ordered := make([]domain.OrganicResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	pages := make([]scrapedPage, 0, t.cfg.MaxPages)
	seen := make(map[string]struct{})
	for _, r := range ordered {
		if len(pages) >= t.cfg.MaxPages {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if !rules.Allows(r.URL) {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}

		text, err := t.scraper.Scrape(ctx, r.URL)
		if err != nil {
			slog.Warn("fallback_scrape_failed", "url", r.URL, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, scrapedPage{url: r.URL, title: r.Title, content: text})
	}
	return pages
}

func (t *FallbackSearchTier) chunkPages(pages []scrapedPage) []domain.ContentChunk {
	out := make([]domain.ContentChunk, 0, len(pages)*t.cfg.MaxChunksPerPage)
	for _, p := range pages {
		parts := t.chunker.Split(p.content)
		for i, part := range parts {
			if i >= t.cfg.MaxChunksPerPage {
				break
			}
			out = append(out, domain.ContentChunk{
				Content:     part,
				SourceURL:   p.url,
				SourceTitle: p.title,
				ChunkIndex:  i,
			})
		}
	}
	return out
}

func (t *FallbackSearchTier) rank(ctx context.Context, query string, chunks []domain.ContentChunk) ([]domain.ContentChunk, error) {
	queryVector, err := t.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed fallback query: %w", err)
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	vectors, err := t.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed fallback chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("chunk embeddings mismatch: got %d want %d", len(vectors), len(chunks))
	}

	out := make([]domain.ContentChunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		sim := cosineSimilarity(queryVector, vectors[i])
		out[i].RelevanceScore = sim
		out[i].ConfidencePercentage = confidencePercent(sim)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out, nil
}

// sourceSites returns one record per URL in best-score order.
func sourceSites(chunks []domain.ContentChunk, pages []scrapedPage) []domain.SourceSite {
	lengths := make(map[string]int, len(pages))
	for _, p := range pages {
		lengths[p.url] = len([]rune(p.content))
	}

	index := make(map[string]int)
	out := make([]domain.SourceSite, 0)
	for _, c := range chunks {
		if i, ok := index[c.SourceURL]; ok {
			if c.RelevanceScore > out[i].SimilarityScore {
				out[i].SimilarityScore = c.RelevanceScore
			}
			continue
		}
		index[c.SourceURL] = len(out)
		out = append(out, domain.SourceSite{
			URL:             c.SourceURL,
			Title:           c.SourceTitle,
			SimilarityScore: c.RelevanceScore,
			ContentLength:   lengths[c.SourceURL],
		})
	}
	return out
}

func fallbackError(err error) domain.FallbackResult {
	slog.Warn("fallback_search_failed", "error", err)
	return domain.FallbackResult{Status: domain.TierError, Reason: domain.NoInfoFallbackFailed, Err: err}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func confidencePercent(similarity float64) float64 {
	pct := similarity * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
