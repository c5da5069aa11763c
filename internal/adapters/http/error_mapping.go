package httpadapter

import (
	"net/http"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

// statusByKind is checked in order and the first matching kind wins.
// Provider errors that carry no listed kind fall through to 500.
var statusByKind = []struct {
	kind   error
	status int
}{
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrKnowledgeNotFound, http.StatusNotFound},
	{domain.ErrSessionNotFound, http.StatusNotFound},
	{domain.ErrRecordNotFound, http.StatusNotFound},
	{domain.ErrAlreadyExists, http.StatusConflict},
	{domain.ErrNotConfigured, http.StatusServiceUnavailable},
	{domain.ErrTemporary, http.StatusServiceUnavailable},
	{domain.ErrProviderTimeout, http.StatusServiceUnavailable},
}

func mapErrorToHTTPStatus(err error) int {
	for _, entry := range statusByKind {
		if domain.IsKind(err, entry.kind) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}
