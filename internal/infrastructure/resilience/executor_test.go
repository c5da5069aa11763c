package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

var errUpstream503 = errors.New("upstream 503")

func retryOn(target error) ErrorClassifier {
	return func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, target), RecordFailure: true}
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	states  []string
	retries map[string]int
}

func (o *recordingObserver) ObserveBreakerState(_ string, state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) ObserveRetry(operation string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.retries == nil {
		o.retries = map[string]int{}
	}
	o.retries[operation]++
}

func TestVectorWriteRetriesUntilSuccess(t *testing.T) {
	observer := &recordingObserver{}
	exec := NewExecutor(VectorWriteConfig(3, time.Millisecond).WithObserver(observer))

	attempts := 0
	err := exec.Execute(context.Background(), "qdrant.upsert", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errUpstream503
		}
		return nil
	}, retryOn(errUpstream503))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if observer.retries["qdrant.upsert"] != 2 {
		t.Fatalf("expected 2 observed retries, got %v", observer.retries)
	}
}

func TestProviderConfigNeverRetries(t *testing.T) {
	exec := NewExecutor(ProviderConfig())

	attempts := 0
	err := exec.Execute(context.Background(), "openai.chat", func(context.Context) error {
		attempts++
		return errUpstream503
	}, retryOn(errUpstream503))
	if !errors.Is(err, errUpstream503) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestExecuteStopsOnNonRetryableFailure(t *testing.T) {
	exec := NewExecutor(VectorWriteConfig(3, time.Millisecond))

	attempts := 0
	errBadRequest := errors.New("400 bad vector size")
	err := exec.Execute(context.Background(), "qdrant.upsert", func(context.Context) error {
		attempts++
		return errBadRequest
	}, retryOn(errUpstream503))
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAndReportsState(t *testing.T) {
	observer := &recordingObserver{}
	cfg := ProviderConfig().WithObserver(observer)
	cfg.BreakerMinRequests = 2
	cfg.BreakerOpenTimeout = time.Minute
	exec := NewExecutor(cfg)

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "tavily.search", func(context.Context) error {
			return errUpstream503
		}, nil)
		if !errors.Is(err, errUpstream503) {
			t.Fatalf("expected upstream error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "tavily.search", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if got := exec.BreakerStates()["tavily.search"]; got != "open" {
		t.Fatalf("expected open breaker, got %q", got)
	}
	if len(observer.states) != 2 || observer.states[0] != "closed" || observer.states[1] != "open" {
		t.Fatalf("unexpected observed states: %v", observer.states)
	}
}

func TestExecuteReturnsLastErrorWhenContextEnds(t *testing.T) {
	exec := NewExecutor(VectorWriteConfig(5, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := exec.Execute(ctx, "qdrant.delete", func(context.Context) error {
		attempts++
		cancel()
		return errUpstream503
	}, retryOn(errUpstream503))
	if !errors.Is(err, errUpstream503) {
		t.Fatalf("expected last upstream error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected cancellation to stop retries, got %d attempts", attempts)
	}
}

func TestBackoffSchedules(t *testing.T) {
	linear := VectorWriteConfig(3, time.Second).normalize()
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 3 * time.Second, 4: 3 * time.Second} {
		if got := linear.backoff(attempt); got != want {
			t.Fatalf("linear backoff(%d) = %s, want %s", attempt, got, want)
		}
	}

	exponential := DefaultConfig().normalize()
	for attempt, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond, 5: 400 * time.Millisecond} {
		if got := exponential.backoff(attempt); got != want {
			t.Fatalf("exponential backoff(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestExecuteRejectsNilCallback(t *testing.T) {
	if err := NewExecutor(DefaultConfig()).Execute(context.Background(), "op", nil, nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}
