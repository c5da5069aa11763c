package qdrant

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
		return "qdrant status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func (e *HTTPStatusError) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// classifyWriteError retries upserts and deletes on 502 and 503 only.
func classifyWriteError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{RecordFailure: statusErr.StatusCode >= 500}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func classifyReadError(err error) resilience.ErrorClassification {
	class := classifyWriteError(err)
	class.Retryable = false
	return class
}

func mapQdrantError(operation string, err error) error {
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

// alreadyExists reports the conflict Qdrant returns for a repeated collection
// or index creation.
func alreadyExists(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(statusErr.Body), "already exists")
}
