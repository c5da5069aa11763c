package httpadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/config"
)

func serveGET(handler http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRateLimitRejectsBurstOverflowButNotHealthChecks(t *testing.T) {
	handler := newTestHandler(config.Config{APIRateLimitRPS: 0.5, APIRateLimitBurst: 1})

	if rec := serveGET(handler, "/v1/chat/cache/stats"); rec.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", rec.Code)
	}
	limited := serveGET(handler, "/v1/peptides/BPC-157")
	if limited.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", limited.Code)
	}
	if got := limited.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After of 2s at 0.5 rps, got %q", got)
	}
	if body := decodeBody(t, limited); body["error"] != "rate limit exceeded" {
		t.Fatalf("unexpected 429 body: %v", body)
	}
	if limited.Header().Get(requestIDHeader) == "" {
		t.Fatalf("rejected requests still carry a request id")
	}

	for i := 0; i < 3; i++ {
		if rec := serveGET(handler, "/healthz"); rec.Code != http.StatusOK {
			t.Fatalf("health check must bypass the limiter, got %d", rec.Code)
		}
	}
}

func TestRateLimitDisabledByDefault(t *testing.T) {
	handler := newTestHandler(config.Config{})
	for i := 0; i < 50; i++ {
		if rec := serveGET(handler, "/v1/chat/cache/stats"); rec.Code != http.StatusOK {
			t.Fatalf("request %d expected 200 with limiter off, got %d", i, rec.Code)
		}
	}
}

func TestBackpressureShedsWhenSlotsAreTaken(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)
	var served atomic.Int32

	handler := backpressureMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		if r.URL.Path == "/v1/chat/search" {
			close(started)
			<-release
		}
		w.WriteHeader(http.StatusNoContent)
	}), 1, 20*time.Millisecond)

	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/search", nil))
		done <- rec.Code
	}()
	<-started

	shed := serveGET(handler, "/v1/peptides/TB-500")
	if shed.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while saturated, got %d", shed.Code)
	}
	if shed.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After on shed request")
	}
	if body := decodeBody(t, shed); body["error"] == "" {
		t.Fatalf("expected overload message, got %v", body)
	}
	if rec := serveGET(handler, "/healthz"); rec.Code != http.StatusNoContent {
		t.Fatalf("health check must bypass backpressure, got %d", rec.Code)
	}

	close(release)
	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("slow request expected 204, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for slow request")
	}
	if served.Load() != 2 {
		t.Fatalf("expected only the slow request and the health check to be served, got %d", served.Load())
	}
}

func TestBackpressureGivesUpWhenClientLeaves(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	holding := make(chan struct{})
	handler := backpressureMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(holding)
		<-hold
	}), 1, time.Minute)

	go handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/chat/cache/stats", nil))
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	finished := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat/cache/stats", nil).WithContext(ctx))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("cancelled request kept waiting for a slot")
	}
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/cache/stats", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "req-42" || rec.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("expected caller request id to be kept, got ctx=%q header=%q", seen, rec.Header().Get(requestIDHeader))
	}

	rec = serveGET(handler, "/v1/chat/cache/stats")
	if seen == "" || seen == "req-42" || rec.Header().Get(requestIDHeader) != seen {
		t.Fatalf("expected a generated request id, got %q", seen)
	}
}
