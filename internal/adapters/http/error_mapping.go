package httpadapter

import (
	"net/http"

	"github.com/vatsight/pipeline/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrExternalAPI):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
