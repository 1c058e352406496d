// Package httputil centralizes JSON envelopes and domain-error translation so
// every handler returns the same wire shapes.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "provenance/pkg/domain-errors"
)

// Validatable lets request types validate and normalize themselves after
// decoding. Validation failures must be coded domain errors.
type Validatable interface {
	Validate() error
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError translates a domain error into the standard error envelope.
// Internal errors deliberately omit the description so infrastructure details
// never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.MessageOf(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, ToHTTPStatus(code), body)
}

// ToHTTPStatus maps domain error codes onto HTTP statuses.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeInvalidTransition, dErrors.CodePrematureMint,
		dErrors.CodeMismatch, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes a JSON body into T and runs its validation. On
// failure it writes the error response and returns ok=false; handlers just
// return.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (PT, bool) {
	req := PT(new(T))
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		if logger != nil {
			logger.DebugContext(r.Context(), "request validation failed", "error", err)
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
