package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

func (rt *Router) listAllowedURLs(w http.ResponseWriter, r *http.Request) {
	items, err := rt.services.Admin.ListAllowedURLs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.AllowedURL{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed_urls": items})
}

func (rt *Router) addAllowedURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL         string `json:"url"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	item, err := rt.services.Admin.AddAllowedURL(r.Context(), req.URL, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (rt *Router) deleteAllowedURL(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := rt.services.Admin.DeleteAllowedURL(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listRestrictions(w http.ResponseWriter, r *http.Request) {
	items, err := rt.services.Admin.ListRestrictions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.ChatRestriction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_restrictions": items})
}

func (rt *Router) addRestriction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RestrictionText string `json:"restriction_text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	item, err := rt.services.Admin.AddRestriction(r.Context(), req.RestrictionText)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (rt *Router) deleteRestriction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := rt.services.Admin.DeleteRestriction(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) getToggle(w http.ResponseWriter, r *http.Request) {
	toggle, err := rt.services.Admin.ManagedSearchToggle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toggle)
}

func (rt *Router) setToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"is_enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "is_enabled is required")
		return
	}
	toggle, err := rt.services.Admin.SetManagedSearchToggle(r.Context(), *req.Enabled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toggle)
}

func (rt *Router) dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.services.Dashboard.Summary(r.Context()))
}

func (rt *Router) apiUsage(w http.ResponseWriter, r *http.Request) {
	period, ok := domain.ParseUsagePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeBadRequest(w, "period must be daily, weekly or monthly")
		return
	}
	buckets, err := rt.services.Dashboard.Usage(r.Context(), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":  period,
		"buckets": buckets,
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(pathValue(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
