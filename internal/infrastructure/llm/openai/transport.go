package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
)

func (c *Client) postJSON(ctx context.Context, operation, model, path string, payload any, out any, tokens func() (int, int)) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	call := apiusage.Call{
		Provider:     apiusage.ProviderOpenAI,
		Operation:    operation,
		Model:        model,
		RequestBytes: len(body),
	}
	return c.tracker.Track(ctx, call, func(ctx context.Context) (apiusage.Result, error) {
		var statusCode int
		err := c.execute(ctx, "openai."+operation, func(ctx context.Context) error {
			var sendErr error
			statusCode, sendErr = c.send(ctx, path, body, out, operation)
			return sendErr
		})

		result := apiusage.Result{StatusCode: statusCode}
		if err != nil {
			return result, mapOpenAIError("openai "+operation, err)
		}
		if tokens != nil {
			result.TokensIn, result.TokensOut = tokens()
		}
		return result, nil
	})
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyOpenAIError)
}

func (c *Client) send(ctx context.Context, path string, body []byte, out any, operation string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("openai %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, newHTTPStatusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return resp.StatusCode, nil
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
