package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/okazakov/bookbot/internal/api/middleware"
	"github.com/okazakov/bookbot/internal/domain"
)

// writeDomainError maps the typed domain errors to HTTP statuses.
// Anything unrecognized is a 500 and gets logged; the typed errors
// carry their own user-facing message.
func writeDomainError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		vErr *domain.ValidationError
		nErr *domain.NotFoundError
		sErr *domain.InvalidStateError
		fErr *domain.ForbiddenError
		aErr *domain.AllocationError
	)

	switch {
	case errors.As(err, &vErr):
		middleware.WriteError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &nErr):
		middleware.WriteError(w, http.StatusNotFound, nErr.Error())
	case errors.As(err, &sErr):
		middleware.WriteError(w, http.StatusConflict, sErr.Error())
	case errors.As(err, &fErr):
		middleware.WriteError(w, http.StatusForbidden, fErr.Error())
	case errors.As(err, &aErr):
		middleware.WriteError(w, http.StatusServiceUnavailable, "Could not allocate a reference code, retry later")
	default:
		log.Error().Err(err).Msg("Unhandled service error")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
