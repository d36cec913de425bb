package httpadapter

import (
	"net/http"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound), domain.IsKind(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRebuildInProgress):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrNoInput):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrIndexUnavailable),
		domain.IsKind(err, domain.ErrRebuildUnsupported):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
