package httpadapter

import (
	"net/http"
	"strings"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

const (
	statusAnswered      = "answered"
	statusNoInformation = "no_information"
)

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type chatResponse struct {
	Status string `json:"status"`
	*domain.Answer
}

func newChatResponse(answer *domain.Answer) chatResponse {
	status := statusAnswered
	if answer.State == domain.StateNoInformationFound {
		status = statusNoInformation
	}
	if answer.ContextRefs == nil {
		answer.ContextRefs = []domain.ContextRef{}
	}
	return chatResponse{Status: status, Answer: answer}
}

func (rt *Router) chatSearch(w http.ResponseWriter, r *http.Request) {
	rt.answer(w, r, "")
}

func (rt *Router) chatQueryPeptide(w http.ResponseWriter, r *http.Request) {
	name := pathValue(r, "peptide_name")
	if name == "" {
		writeBadRequest(w, "peptide_name is required")
		return
	}
	rt.answer(w, r, name)
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request, entityHint string) {
	query, ok := decodeChatQuery(w, r, entityHint)
	if !ok {
		return
	}
	answer, err := rt.services.Answers.Answer(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logAnswer(r, string(query.Scope()), answer)
	writeJSON(w, http.StatusOK, newChatResponse(answer))
}

func (rt *Router) chatRoute(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	// Empty text is small talk for the router, so it skips query validation.
	answer, err := rt.services.Router.Route(r.Context(), domain.Query{
		Text:      strings.TrimSpace(req.Query),
		SessionID: strings.TrimSpace(req.SessionID),
		UserID:    strings.TrimSpace(req.UserID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	logAnswer(r, "routed", answer)
	writeJSON(w, http.StatusOK, newChatResponse(answer))
}

func logAnswer(r *http.Request, scope string, answer *domain.Answer) {
	addLogFields(r.Context(),
		"scope", scope,
		"source", string(answer.Source),
		"state", string(answer.State),
		"entity", answer.EntityName,
	)
}

func decodeChatQuery(w http.ResponseWriter, r *http.Request, entityHint string) (domain.Query, bool) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return domain.Query{}, false
	}
	query, err := domain.NewQuery(req.Query, entityHint)
	if err != nil {
		writeError(w, r, err)
		return domain.Query{}, false
	}
	query.SessionID = strings.TrimSpace(req.SessionID)
	query.UserID = strings.TrimSpace(req.UserID)
	return query, true
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	session, err := rt.services.Sessions.CreateSession(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) sessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := pathValue(r, "session_id")
	messages, err := rt.services.Sessions.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.services.Sessions.DeleteSession(r.Context(), pathValue(r, "session_id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.services.Cache.Stats(r.Context()))
}

func (rt *Router) clearCache(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = "all"
	}
	deleted, err := rt.services.Cache.InvalidateAll(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":   scope,
		"deleted": deleted,
	})
}
