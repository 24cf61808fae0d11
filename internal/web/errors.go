package web

// errors.go turns errors into JSON responses.
//
// The technical error is logged with the request ID; the client receives
// the mapped core.UserMessage. For ingests that reached the pipeline the
// IngestResult, including its diagnostics, is attached.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/meterload/internal/core"
	"github.com/JonMunkholm/meterload/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Action  string             `json:"action,omitempty"`
	Code    string             `json:"code"`
	Result  *core.IngestResult `json:"result,omitempty"`
}

// errNoFile is returned when an upload carries no usable file.
var errNoFile = errors.New("no file provided")

// badRequest marks client mistakes found before the pipeline runs.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

// errUnknownProfile is matched by core.MapError through its text.
type errUnknownProfile struct{ err error }

func (e errUnknownProfile) Error() string { return e.err.Error() }
func (e errUnknownProfile) Unwrap() error { return e.err }

// statusFor picks the HTTP status of err.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var unknown errUnknownProfile
	var bad badRequest
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &bad), errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyIngests):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrMeterNotFound), errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrFatalBatch), errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrConfig), errors.Is(err, core.ErrRead):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped message. result may be nil.
func respondError(w http.ResponseWriter, r *http.Request, err error, result *core.IngestResult) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", args...)
	} else {
		log.Info("request rejected", args...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
		Result:  result,
	})
}
