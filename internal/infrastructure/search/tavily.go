package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
)

const (
	DefaultTavilyURL  = "https://api.tavily.com"
	tavilyMaxResults  = 10
	tavilySearchDepth = "advanced"
)

// Tavily is the managed search provider. It asks for raw page content so the
// cascade can synthesize without scraping.
type Tavily struct {
	baseURL   string
	apiKey    string
	transport transport
}

func NewTavily(baseURL, apiKey string, opts Options) *Tavily {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultTavilyURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Tavily{
		baseURL:   baseURL,
		apiKey:    strings.TrimSpace(apiKey),
		transport: newTransport(apiusage.ProviderTavily, opts),
	}
}

func (t *Tavily) Search(ctx context.Context, query string) ([]domain.SearchHit, error) {
	if t == nil || t.apiKey == "" {
		return nil, domain.WrapError(domain.ErrNotConfigured, "tavily search", fmt.Errorf("TAVILY_API_KEY is not set"))
	}

	body, err := json.Marshal(map[string]any{
		"query":               query,
		"search_depth":        tavilySearchDepth,
		"include_raw_content": true,
		"max_results":         tavilyMaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	var response struct {
		Results []struct {
			URL        string  `json:"url"`
			Title      string  `json:"title"`
			Content    string  `json:"content"`
			RawContent *string `json:"raw_content"`
			Score      float64 `json:"score"`
		} `json:"results"`
	}
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create tavily request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
		return req, nil
	}
	if err := t.transport.roundTrip(ctx, "search_"+tavilySearchDepth, len(body), build, &response); err != nil {
		return nil, err
	}

	hits := make([]domain.SearchHit, 0, len(response.Results))
	for _, r := range response.Results {
		content := r.Content
		if r.RawContent != nil && strings.TrimSpace(*r.RawContent) != "" {
			content = *r.RawContent
		}
		hits = append(hits, domain.SearchHit{
			URL:           r.URL,
			Title:         r.Title,
			RawContent:    content,
			ProviderScore: r.Score,
		})
	}
	return hits, nil
}

var _ ports.ManagedSearchProvider = (*Tavily)(nil)
