package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/target/creative-dispatch/internal/data"
	apperrors "github.com/target/creative-dispatch/internal/errors"
	"github.com/target/creative-dispatch/internal/service"
)

// maxRequestBodyBytes bounds JSON request bodies; job payloads are small documents.
const maxRequestBodyBytes = 1 << 20

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
// An empty body is accepted and leaves dst untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// writeServiceError maps a service error onto a status code. op prefixes the error code
// for anything that is not a well-known condition, e.g. "replay" → "replay_failed".
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, data.ErrJobNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: errors.New("job not found")})
	case errors.Is(err, service.ErrInvalidTransition):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "invalid_transition", Err: err})
	case apperrors.IsValidation(err) || isValidationError(err):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
	default:
		status := apperrors.HTTPStatus(err)
		msg := err
		if status >= http.StatusInternalServerError {
			// Don't leak store internals to API clients.
			msg = fmt.Errorf("%s failed", op)
		}
		WriteError(w, ErrorParams{Code: status, ErrCode: op + "_failed", Err: msg})
	}
}
