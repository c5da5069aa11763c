package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/resilience"
	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
)

type HTTPStatusError struct {
	Provider   string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "search status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("%s search status: %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s search status: %s: %s", e.Provider, e.Status, e.Body)
}

func (e *HTTPStatusError) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type Options struct {
	HTTPClient *http.Client
	Executor   *resilience.Executor
	Tracker    *apiusage.Tracker
}

type transport struct {
	provider   string
	httpClient *http.Client
	executor   *resilience.Executor
	tracker    *apiusage.Tracker
}

func newTransport(provider string, opts Options) transport {
	return transport{
		provider:   provider,
		httpClient: opts.HTTPClient,
		executor:   opts.Executor,
		tracker:    opts.Tracker,
	}
}

// roundTrip sends req through the breaker and the usage tracker and decodes a
// JSON body into out. build is called once per attempt.
func (t transport) roundTrip(ctx context.Context, operation string, requestBytes int, build func(ctx context.Context) (*http.Request, error), out any) error {
	call := apiusage.Call{Provider: t.provider, Operation: operation, RequestBytes: requestBytes}
	return t.tracker.Track(ctx, call, func(ctx context.Context) (apiusage.Result, error) {
		var statusCode int
		send := func(ctx context.Context) error {
			req, err := build(ctx)
			if err != nil {
				return err
			}
			statusCode, err = t.send(req, out)
			return err
		}

		var err error
		if t.executor != nil {
			err = t.executor.Execute(ctx, t.provider+"."+operation, send, classifySearchError)
		} else {
			err = send(ctx)
		}
		return apiusage.Result{StatusCode: statusCode}, mapSearchError(t.provider+" search", err)
	})
}

func (t transport) send(req *http.Request, out any) (int, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			// The query string may carry the API key.
			urlErr.URL = req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
		}
		return 0, fmt.Errorf("%s request: %w", t.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, &HTTPStatusError{
			Provider:   t.provider,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", t.provider, err)
	}
	return resp.StatusCode, nil
}

// classifySearchError never retries; search failures escalate to the next
// tier. Client errors do not count against the breaker.
func classifySearchError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{
			RecordFailure: statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests,
		}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func mapSearchError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrProviderTimeout, operation, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapError(domain.ErrProviderTimeout, operation, err)
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrProviderError, operation, err)
	}
	return domain.WrapError(domain.ErrProviderError, operation, domain.WrapError(domain.ErrTemporary, operation, err))
}
