package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

func TestDecodeTranscript(t *testing.T) {
	event, err := decodeTranscript([]byte(`{"session_id":"s-1","messages":[{"role":"user","content":"What is BPC-157?"}]}`))
	if err != nil {
		t.Fatalf("decodeTranscript() error = %v", err)
	}
	if event.SessionID != "s-1" || len(event.Messages) != 1 || event.Messages[0].Role != domain.RoleUser {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := decodeTranscript([]byte(`{"messages":[]}`)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing session, got %v", err)
	}
	if _, err := decodeTranscript([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestClassifyPublishError(t *testing.T) {
	if class := classifyPublishError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !class.Retryable || !class.RecordFailure {
		t.Fatalf("closed connection must be retried and recorded, got %+v", class)
	}
	if class := classifyPublishError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must not be retried or recorded")
	}
	if class := classifyPublishError(gobreaker.ErrOpenState); class.Retryable {
		t.Fatalf("open breaker must not be retried")
	}
	if class := classifyPublishError(nats.ErrMaxPayload); class.Retryable || class.RecordFailure {
		t.Fatalf("oversized payload is not a broker fault, got %+v", class)
	}
	if class := classifyPublishError(errors.New("bad subject")); class.Retryable {
		t.Fatalf("unknown errors must not be retried")
	}
}

func TestMapPublishError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{name: "timeout", err: nats.ErrTimeout, kind: domain.ErrProviderTimeout},
		{name: "disconnected", err: fmt.Errorf("nats publish: %w", nats.ErrDisconnected), kind: domain.ErrTemporary},
		{name: "breaker", err: gobreaker.ErrOpenState, kind: domain.ErrTemporary},
		{name: "payload", err: nats.ErrMaxPayload, kind: domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mapPublishError(tt.err); !domain.IsKind(err, tt.kind) {
				t.Fatalf("mapPublishError(%v) = %v, want kind %v", tt.err, err, tt.kind)
			}
		})
	}

	plain := errors.New("bad payload")
	if got := mapPublishError(plain); got != plain {
		t.Fatalf("expected error unchanged, got %v", got)
	}
	if mapPublishError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
