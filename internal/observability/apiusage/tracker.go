package apiusage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	ProviderOpenAI  = "openai"
	ProviderQdrant  = "qdrant"
	ProviderTavily  = "tavily"
	ProviderSerpAPI = "serpapi"
	ProviderRedis   = "redis"
)

// Call identifies one outbound request.
type Call struct {
	Provider     string
	Operation    string
	Model        string
	RequestBytes int
}

// Result is what the wrapped function reports back about the response.
type Result struct {
	StatusCode int
	TokensIn   int
	TokensOut  int
}

// Recorder receives per-call measurements, normally the Prometheus metrics.
type Recorder interface {
	RecordExternalCall(provider, operation, model string, statusCode int, duration time.Duration, costUSD float64, tokensIn, tokensOut int)
}

// Sink persists usage records. Record must not block.
type Sink interface {
	Record(usage domain.APIUsage)
}

type statusCoder interface {
	HTTPStatus() int
}

type Tracker struct {
	recorder Recorder
	sink     Sink
	cost     *CostCalculator
	now      func() time.Time
}

func NewTracker(recorder Recorder, sink Sink, cost *CostCalculator) *Tracker {
	if cost == nil {
		cost = DefaultCostCalculator()
	}
	return &Tracker{
		recorder: recorder,
		sink:     sink,
		cost:     cost,
		now:      time.Now,
	}
}

// Track runs fn and records latency, status, tokens and cost for it. The
// error returned by fn is passed through untouched. A nil tracker only runs fn.
func (t *Tracker) Track(ctx context.Context, call Call, fn func(ctx context.Context) (Result, error)) error {
	if t == nil {
		_, err := fn(ctx)
		return err
	}

	start := t.now()
	result, err := fn(ctx)
	elapsed := t.now().Sub(start)

	statusCode := result.StatusCode
	if err != nil {
		var coded statusCoder
		if errors.As(err, &coded) {
			statusCode = coded.HTTPStatus()
		}
	}

	var costUSD float64
	if err == nil {
		costUSD = t.cost.Estimate(call, result)
	}

	usage := domain.APIUsage{
		Provider:     call.Provider,
		Operation:    call.Operation,
		Model:        call.Model,
		StatusCode:   statusCode,
		Success:      err == nil,
		LatencyMS:    float64(elapsed.Microseconds()) / 1000,
		RequestBytes: call.RequestBytes,
		TokensIn:     result.TokensIn,
		TokensOut:    result.TokensOut,
		CostUSD:      costUSD,
		CreatedAt:    start.UTC(),
	}
	if err != nil {
		usage.ErrorMessage = truncateMessage(err.Error(), 500)
	}

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "external_api_call",
		"provider", usage.Provider,
		"operation", usage.Operation,
		"model", usage.Model,
		"status_code", usage.StatusCode,
		"success", usage.Success,
		"latency_ms", usage.LatencyMS,
		"tokens_in", usage.TokensIn,
		"tokens_out", usage.TokensOut,
		"cost_usd", usage.CostUSD,
	)

	if t.recorder != nil {
		t.recorder.RecordExternalCall(call.Provider, call.Operation, call.Model, statusCode, elapsed, costUSD, result.TokensIn, result.TokensOut)
	}
	if t.sink != nil {
		t.sink.Record(usage)
	}
	return err
}

func truncateMessage(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// AsyncSink writes usage records through the background pool so the request
// path never waits on Postgres.
type AsyncSink struct {
	runner ports.BackgroundRunner
	repo   ports.UsageRepository
}

func NewAsyncSink(runner ports.BackgroundRunner, repo ports.UsageRepository) *AsyncSink {
	return &AsyncSink{runner: runner, repo: repo}
}

func (s *AsyncSink) Record(usage domain.APIUsage) {
	if s == nil || s.runner == nil || s.repo == nil {
		return
	}
	s.runner.Submit("api_usage_record", func(ctx context.Context) error {
		return s.repo.RecordUsage(ctx, usage)
	})
}
