package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
)

const genericErrorMessage = "Internal Server Error"

// Response is the success envelope shared by every endpoint.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	StatusCode int          `json:"statusCode"`
	Message    string       `json:"message"`
	Success    bool         `json:"success"`
	Errors     []FieldError `json:"errors"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Respond writes data wrapped in the success envelope.
func Respond(w http.ResponseWriter, status int, data any, message string) {
	WriteJSON(w, status, Response{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// WriteError converts err into the failure envelope. Errors that are not *Error are
// reported to Sentry and answered with a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		captureException(r, err)
		apiErr = Internal(genericErrorMessage, err)
	} else if apiErr.Status >= http.StatusInternalServerError {
		captureException(r, err)
	}

	fields := apiErr.Errors
	if fields == nil {
		fields = []FieldError{}
	}

	WriteJSON(w, apiErr.Status, ErrorResponse{
		StatusCode: apiErr.Status,
		Message:    apiErr.Message,
		Success:    false,
		Errors:     fields,
	})
}

func captureException(r *http.Request, err error) {
	if r != nil {
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
			return
		}
	}
	sentry.CaptureException(err)
}
