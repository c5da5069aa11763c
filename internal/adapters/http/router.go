package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/config"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
	"github.com/kirillkom/peptide-answer-service/internal/observability/metrics"
)

const (
	maxRequestBodyBytes = 1 << 20
	backpressureWait    = 250 * time.Millisecond
)

// Services groups the inbound ports the router serves.
type Services struct {
	Router    ports.IntentRouter
	Answers   ports.AnswerService
	Knowledge ports.KnowledgeService
	Cache     ports.CacheAdmin
	Sessions  ports.SessionService
	Dashboard ports.DashboardService
	Admin     ports.AdminService
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, services Services, httpMetrics *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:      cfg,
		services: services,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/chat/search", rt.chatSearch)
	mux.HandleFunc("POST /v1/chat/query/{peptide_name}", rt.chatQueryPeptide)
	mux.HandleFunc("POST /v1/chat/route", rt.chatRoute)
	mux.HandleFunc("POST /v1/chat/sessions", rt.createSession)
	mux.HandleFunc("GET /v1/chat/sessions/{session_id}", rt.sessionHistory)
	mux.HandleFunc("DELETE /v1/chat/sessions/{session_id}", rt.deleteSession)
	mux.HandleFunc("GET /v1/chat/cache/stats", rt.cacheStats)
	mux.HandleFunc("DELETE /v1/chat/cache", rt.clearCache)

	mux.HandleFunc("POST /v1/peptides", rt.createPeptide)
	mux.HandleFunc("GET /v1/peptides/{name}", rt.getPeptide)
	mux.HandleFunc("PUT /v1/peptides/{name}", rt.replacePeptide)
	mux.HandleFunc("DELETE /v1/peptides/{name}", rt.deletePeptide)
	mux.HandleFunc("GET /v1/peptides/{name}/similar", rt.similarPeptides)

	admin := http.NewServeMux()
	admin.HandleFunc("GET /v1/admin/allowed-urls", rt.listAllowedURLs)
	admin.HandleFunc("POST /v1/admin/allowed-urls", rt.addAllowedURL)
	admin.HandleFunc("DELETE /v1/admin/allowed-urls/{id}", rt.deleteAllowedURL)
	admin.HandleFunc("GET /v1/admin/chat-restrictions", rt.listRestrictions)
	admin.HandleFunc("POST /v1/admin/chat-restrictions", rt.addRestriction)
	admin.HandleFunc("DELETE /v1/admin/chat-restrictions/{id}", rt.deleteRestriction)
	admin.HandleFunc("GET /v1/admin/tavily-toggle", rt.getToggle)
	admin.HandleFunc("PUT /v1/admin/tavily-toggle", rt.setToggle)
	admin.HandleFunc("GET /v1/admin/dashboard", rt.dashboard)
	admin.HandleFunc("GET /v1/admin/api-usage", rt.apiUsage)
	mux.Handle("/v1/admin/", adminAuthMiddleware(admin, rt.cfg.AdminAPIKey))

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}
