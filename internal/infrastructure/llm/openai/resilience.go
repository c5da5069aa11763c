package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "openai status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("openai %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("openai %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func (e *HTTPStatusError) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// classifyOpenAIError never asks for a retry: a failed completion escalates
// to the next tier instead. It only decides what the breaker counts.
func classifyOpenAIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: isRetryableHTTPStatus(statusErr.StatusCode),
		}
	}
	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// mapOpenAIError converts transport failures into domain error kinds.
func mapOpenAIError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		return domain.WrapError(domain.ErrProviderTimeout, operation, err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && !isRetryableHTTPStatus(statusErr.StatusCode) {
		return domain.WrapError(domain.ErrProviderError, operation, err)
	}
	return domain.WrapError(domain.ErrProviderError, operation, domain.WrapError(domain.ErrTemporary, operation, err))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
