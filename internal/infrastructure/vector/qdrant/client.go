package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/resilience"
	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
)

const nameField = "name"

type Client struct {
	baseURL    string
	collection string
	vectorSize int
	httpClient *http.Client
	executor   *resilience.Executor
	tracker    *apiusage.Tracker

	ensureMu sync.Mutex
	ensured  bool
}

type Options struct {
	HTTPClient *http.Client
	// Executor is normally built from resilience.VectorWriteConfig; only
	// writes are ever retried.
	Executor *resilience.Executor
	Tracker  *apiusage.Tracker
}

func New(baseURL, collection string, vectorSize int, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		vectorSize: vectorSize,
		httpClient: httpClient,
		executor:   opts.Executor,
		tracker:    opts.Tracker,
	}
}

// EnsureReady creates the collection and the keyword index on name. Both are
// idempotent.
func (c *Client) EnsureReady(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensured {
		return nil
	}

	collection := map[string]any{
		"vectors": map[string]any{
			"size":     c.vectorSize,
			"distance": "Cosine",
		},
	}
	if err := c.putIdempotent(ctx, "ensure_collection", "/collections/"+c.collection, collection); err != nil {
		return err
	}

	index := map[string]any{
		"field_name":   nameField,
		"field_schema": "keyword",
	}
	if err := c.putIdempotent(ctx, "ensure_index", "/collections/"+c.collection+"/index?wait=true", index); err != nil {
		return err
	}
	c.ensured = true
	return nil
}

func (c *Client) putIdempotent(ctx context.Context, operation, path string, payload any) error {
	err := c.do(ctx, operation, http.MethodPut, path, payload, nil, classifyReadError)
	if err == nil || alreadyExists(err) {
		return nil
	}
	return err
}

func (c *Client) Upsert(ctx context.Context, item domain.KnowledgeItem) error {
	if len(item.Vector) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("item %q has no vector", item.Name))
	}
	if c.vectorSize > 0 && len(item.Vector) != c.vectorSize {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("vector has %d dimensions, collection expects %d", len(item.Vector), c.vectorSize))
	}
	if err := c.EnsureReady(ctx); err != nil {
		return err
	}

	body := map[string]any{
		"points": []map[string]any{
			{
				"id":     item.ID,
				"vector": item.Vector,
				"payload": map[string]any{
					nameField:      item.Name,
					"text_content": item.TextContent,
					"metadata":     item.Metadata,
				},
			},
		},
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, "upsert", http.MethodPut, path, body, nil, classifyWriteError)
}

func (c *Client) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]domain.VectorHit, error) {
	if limit <= 0 {
		limit = 1
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if scoreThreshold > 0 {
		reqBody["score_threshold"] = scoreThreshold
	}

	var searchResp struct {
		Result []scoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, "search", http.MethodPost, path, reqBody, &searchResp, classifyReadError); err != nil {
		return nil, err
	}

	out := make([]domain.VectorHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.VectorHit{
			Item:  r.item(),
			Score: r.Score,
		})
	}
	return out, nil
}

func (c *Client) GetByExactName(ctx context.Context, name string) (*domain.KnowledgeItem, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	if err := c.EnsureReady(ctx); err != nil {
		return nil, err
	}
	reqBody := map[string]any{
		"filter":       nameFilter(name),
		"limit":        1,
		"with_payload": true,
		"with_vector":  true,
	}

	var scrollResp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
	if err := c.do(ctx, "scroll", http.MethodPost, path, reqBody, &scrollResp, classifyReadError); err != nil {
		return nil, err
	}
	if len(scrollResp.Result.Points) == 0 {
		return nil, nil
	}
	item := scrollResp.Result.Points[0].item()
	return &item, nil
}

// DeleteByName removes every point stored under name and reports how many
// there were.
func (c *Client) DeleteByName(ctx context.Context, name string) (int, error) {
	if err := c.EnsureReady(ctx); err != nil {
		return 0, err
	}
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	countPath := fmt.Sprintf("/collections/%s/points/count", c.collection)
	countBody := map[string]any{"filter": nameFilter(name), "exact": true}
	if err := c.do(ctx, "count", http.MethodPost, countPath, countBody, &countResp, classifyReadError); err != nil {
		return 0, err
	}
	if countResp.Result.Count == 0 {
		return 0, nil
	}

	deletePath := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	if err := c.do(ctx, "delete", http.MethodPost, deletePath, map[string]any{"filter": nameFilter(name)}, nil, classifyWriteError); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func nameFilter(name string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   nameField,
				"match": map[string]any{"value": name},
			},
		},
	}
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

func (p scoredPoint) item() domain.KnowledgeItem {
	metadata, _ := p.Payload["metadata"].(map[string]any)
	return domain.KnowledgeItem{
		ID:          fmt.Sprintf("%v", p.ID),
		Name:        getStringPayload(p.Payload, nameField),
		Vector:      p.Vector,
		TextContent: getStringPayload(p.Payload, "text_content"),
		Metadata:    metadata,
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

var _ ports.KnowledgeStore = (*Client)(nil)
