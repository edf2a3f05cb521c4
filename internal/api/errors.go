// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/telemetry"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindDuplicateActiveSession:
		return http.StatusConflict
	case model.KindQuotaExceeded, model.KindResolutionNotAllowed:
		return http.StatusForbidden
	case model.KindAssetNotFound, model.KindSessionNotFound:
		return http.StatusNotFound
	case model.KindEncoderSpawnFailure, model.KindEncoderCrashed:
		return http.StatusBadGateway
	case model.KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {error, message}. Internal faults are logged
// with full context and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(telemetry.HTTPAttributes(r.Method, routePattern(r), status)...)
	if status >= http.StatusInternalServerError {
		telemetry.RecordError(span, err, string(kind))
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "api.internal_error").
			Str("kind", string(kind)).
			Msg("request failed")
	}
	writeJSON(w, status, errorBody{
		Error:     string(kind),
		Message:   model.ReasonOf(err),
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeUnauthorized writes a 401 Unauthorized response
func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, errorBody{
		Error:     "Unauthorized",
		Message:   "missing " + HeaderAccountID + " header",
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
