package api

import (
	"errors"
	"net/http"

	"planora/internal/booking"
	"planora/internal/database"
	"planora/internal/service"

	"github.com/rs/zerolog"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, booking.ErrInvalidPrice),
		errors.Is(err, booking.ErrNoCounterOffer):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrTerminalState),
		errors.Is(err, booking.ErrFinalPriceLocked),
		errors.Is(err, database.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, booking.ErrActorNotAllowed),
		errors.Is(err, booking.ErrActorMismatch):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// respondError writes the mapped status. Internal errors are logged and
// hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, "internal server error")
		return
	}
	writeError(w, code, err.Error())
}
