package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/observability/tracing"
	"github.com/aryan0dhankhar/farmorders/internal/security/audit"
	"github.com/aryan0dhankhar/farmorders/internal/security/middleware"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// statusFor maps domain sentinel errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadArguments):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with its mapped status. Unmapped errors are logged
// and hidden behind a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", audit.RequestID(r.Context())),
			slog.String("trace_id", tracing.TraceID(r.Context())),
			slog.String("error", err.Error()),
		)
		msg = "internal error"
	case http.StatusUnauthorized:
		if errors.Is(err, domain.ErrInvalidCredentials) {
			msg = domain.ErrInvalidCredentials.Error()
		}
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// decodeJSON reads the request body into v
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrBadArguments)
	}
	return nil
}

// actorOf returns the authenticated caller. The JWT middleware guarantees
// one on every non-public route.
func actorOf(r *http.Request) (domain.Actor, error) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	return actor, nil
}
