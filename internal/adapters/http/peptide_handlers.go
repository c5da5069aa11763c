package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

const maxSimilarTopK = 50

func (rt *Router) createPeptide(w http.ResponseWriter, r *http.Request) {
	var peptide domain.Peptide
	if err := decodeJSON(r, &peptide); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	item, err := rt.services.Knowledge.CreatePeptide(r.Context(), peptide)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (rt *Router) getPeptide(w http.ResponseWriter, r *http.Request) {
	item, err := rt.services.Knowledge.GetPeptide(r.Context(), pathValue(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (rt *Router) replacePeptide(w http.ResponseWriter, r *http.Request) {
	var peptide domain.Peptide
	if err := decodeJSON(r, &peptide); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	item, err := rt.services.Knowledge.ReplacePeptide(r.Context(), pathValue(r, "name"), peptide)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (rt *Router) deletePeptide(w http.ResponseWriter, r *http.Request) {
	if err := rt.services.Knowledge.DeletePeptide(r.Context(), pathValue(r, "name")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) similarPeptides(w http.ResponseWriter, r *http.Request) {
	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSimilarTopK {
			writeBadRequest(w, "top_k must be between 1 and 50")
			return
		}
		topK = n
	}
	name := pathValue(r, "name")
	similar, err := rt.services.Knowledge.FindSimilar(r.Context(), name, topK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"similar": similar,
	})
}
