package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/chat/query":                 "/v1/chat/query",
		"/v1/chat/query/BPC-157":         "/v1/chat/query/{peptide_name}",
		"/v1/chat/sessions/abc":          "/v1/chat/sessions/{session_id}",
		"/v1/peptides/TB-500":            "/v1/peptides/{name}",
		"/v1/peptides/TB-500/similar":    "/v1/peptides/{name}/similar",
		"/v1/admin/allowed-urls/7":       "/v1/admin/allowed-urls/{id}",
		"/v1/admin/chat-restrictions/12": "/v1/admin/chat-restrictions/{id}",
		"/healthz":                       "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMetricsExposeCascadeAndExternalSeries(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/peptides/BPC-157", nil))

	m.ObserveTier("vector", domain.TierFound, 40*time.Millisecond)
	m.ObserveOutcome(domain.StateAnsweredFromVector, domain.SourceVector, 900*time.Millisecond)
	m.RecordExternalCall("openai", "chat_completion", "gpt-4o", 200, time.Second, 0.0125, 120, 80)
	m.RecordExternalCall("tavily", "search", "", 0, time.Second, 0, 0, 0)
	m.ObserveTask("cache_write", "success", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`peptide_http_requests_total{method="GET",path="/v1/peptides/{name}",service="api",status="418"} 1`,
		`peptide_cascade_tier_results_total{service="api",status="found",tier="vector"} 1`,
		`peptide_cascade_answers_total{service="api",source="vector",state="answered_from_vector"} 1`,
		`peptide_external_calls_total{operation="search",provider="tavily",service="api",status="error"} 1`,
		`peptide_llm_tokens_total{direction="in",model="gpt-4o",service="api"} 120`,
		`peptide_background_tasks_total{outcome="success",service="api",task="cache_write"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
