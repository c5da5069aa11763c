package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
)

const DefaultSerpAPIURL = "https://serpapi.com"

// SerpAPI returns Google organic results for the fallback tier.
type SerpAPI struct {
	baseURL   string
	apiKey    string
	transport transport
}

func NewSerpAPI(baseURL, apiKey string, opts Options) *SerpAPI {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultSerpAPIURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SerpAPI{
		baseURL:   baseURL,
		apiKey:    strings.TrimSpace(apiKey),
		transport: newTransport(apiusage.ProviderSerpAPI, opts),
	}
}

func (s *SerpAPI) Search(ctx context.Context, query string, numResults int) ([]domain.OrganicResult, error) {
	if s == nil || s.apiKey == "" {
		return nil, domain.WrapError(domain.ErrNotConfigured, "serpapi search", fmt.Errorf("SERPAPI_API_KEY is not set"))
	}
	if numResults <= 0 {
		numResults = 10
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(numResults))
	params.Set("api_key", s.apiKey)
	endpoint := s.baseURL + "/search.json?" + params.Encode()

	var response struct {
		Error          string `json:"error"`
		OrganicResults []struct {
			Position int    `json:"position"`
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
		} `json:"organic_results"`
	}
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create serpapi request: %w", err)
		}
		return req, nil
	}
	if err := s.transport.roundTrip(ctx, "search", 0, build, &response); err != nil {
		return nil, err
	}

	if response.Error != "" {
		// SerpAPI reports an empty result page as an error string with status 200.
		if strings.Contains(strings.ToLower(response.Error), "hasn't returned any results") {
			return []domain.OrganicResult{}, nil
		}
		return nil, domain.WrapError(domain.ErrProviderError, "serpapi search", fmt.Errorf("%s", response.Error))
	}

	out := make([]domain.OrganicResult, 0, len(response.OrganicResults))
	for i, r := range response.OrganicResults {
		if r.Link == "" {
			continue
		}
		rank := r.Position
		if rank <= 0 {
			rank = i + 1
		}
		out = append(out, domain.OrganicResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Rank:    rank,
		})
	}
	return out, nil
}

var _ ports.BroadSearchProvider = (*SerpAPI)(nil)
