// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var invalid *shared.ValidationError
	switch {
	case errors.As(err, &invalid):
		ProblemField(w, http.StatusUnprocessableEntity, "Validation Failed", invalid.Message, invalid.Field)
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrVersionConflict), errors.Is(err, shared.ErrTransaction):
		Problem(w, http.StatusConflict, "Not Completed", err.Error())
	case errors.Is(err, shared.ErrDocumentTooLarge):
		Problem(w, http.StatusRequestEntityTooLarge, "Document Too Large", err.Error())
	case shared.IsOffline(err):
		Problem(w, http.StatusServiceUnavailable, "Offline", err.Error())
	case errors.Is(err, docsync.ErrMalformed):
		Problem(w, http.StatusBadGateway, "Malformed Document", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// BadRequest reports an undecodable request.
func BadRequest(w http.ResponseWriter, err error) {
	Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
}
