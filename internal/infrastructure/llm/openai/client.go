package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/resilience"
	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
)

const (
	DefaultBaseURL          = "https://api.openai.com/v1"
	defaultEmbeddingTimeout = 30 * time.Second
	defaultChatTimeout      = 45 * time.Second
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
	tracker    *apiusage.Tracker
}

type Options struct {
	HTTPClient *http.Client
	Executor   *resilience.Executor
	Tracker    *apiusage.Tracker
}

func New(baseURL, apiKey string, opts Options) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
		executor:   opts.Executor,
		tracker:    opts.Tracker,
	}
}

func (c *Client) configured() bool {
	return c != nil && c.apiKey != ""
}

type Embedder struct {
	client     *Client
	model      string
	dimensions int
	timeout    time.Duration
}

func NewEmbedder(client *Client, model string, dimensions int) *Embedder {
	return &Embedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
		timeout:    defaultEmbeddingTimeout,
	}
}

// Embed returns one vector per input in input order. Vectors longer than the
// configured dimensionality are truncated.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !e.client.configured() {
		return nil, domain.WrapError(domain.ErrNotConfigured, "openai embed", fmt.Errorf("OPENAI_API_KEY is not set"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	request := map[string]any{
		"model": e.model,
		"input": texts,
	}
	if e.dimensions > 0 {
		request["dimensions"] = e.dimensions
	}

	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
		} `json:"usage"`
	}
	tokens := func() (int, int) { return response.Usage.PromptTokens, 0 }
	if err := e.client.postJSON(ctx, "embed", e.model, "/embeddings", request, &response, tokens); err != nil {
		return nil, err
	}
	if len(response.Data) != len(texts) {
		return nil, domain.WrapError(domain.ErrProviderError, "openai embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Data)))
	}

	sort.Slice(response.Data, func(i, j int) bool { return response.Data[i].Index < response.Data[j].Index })
	out := make([][]float32, 0, len(response.Data))
	for _, item := range response.Data {
		vector := item.Embedding
		if e.dimensions > 0 && len(vector) > e.dimensions {
			vector = vector[:e.dimensions]
		}
		out = append(out, vector)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

// Complete runs one chat completion. Failures are never retried here; the
// breaker still counts them.
func (c *Completer) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if !c.client.configured() {
		return "", domain.WrapError(domain.ErrNotConfigured, "openai chat", fmt.Errorf("OPENAI_API_KEY is not set"))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	tokens := func() (int, int) { return response.Usage.PromptTokens, response.Usage.CompletionTokens }
	if err := c.client.postJSON(ctx, "chat_completion", req.Model, "/chat/completions", payload, &response, tokens); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", domain.WrapError(domain.ErrProviderError, "openai chat", fmt.Errorf("response has no choices"))
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

var (
	_ ports.Embedder      = (*Embedder)(nil)
	_ ports.ChatCompleter = (*Completer)(nil)
)
