package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/resilience"
	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
)

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any, classifier resilience.ErrorClassifier) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
	}

	call := apiusage.Call{Provider: apiusage.ProviderQdrant, Operation: operation, RequestBytes: len(body)}
	return c.tracker.Track(ctx, call, func(ctx context.Context) (apiusage.Result, error) {
		var statusCode int
		send := func(ctx context.Context) error {
			var err error
			statusCode, err = c.send(ctx, method, path, body, out, operation)
			return err
		}

		var err error
		if c.executor != nil {
			err = c.executor.Execute(ctx, "qdrant."+operation, send, classifier)
		} else {
			err = send(ctx)
		}
		return apiusage.Result{StatusCode: statusCode}, mapQdrantError("qdrant "+operation, err)
	})
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any, operation string) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return resp.StatusCode, nil
}
