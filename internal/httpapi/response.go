package httpapi

import (
	"encoding/json"
	"net/http"

	"signalrelay/internal/constants"
)

const (
	ErrCodeRateLimited    = constants.ErrCodeRateLimited
	ErrCodeInvalidRequest = constants.ErrCodeInvalidRequest
	ErrCodeNotFound       = constants.ErrCodeNotFound
	ErrCodeInternal       = constants.ErrCodeInternal
	ErrCodeNotImplemented = constants.ErrCodeNotImplemented
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "An internal error occurred")
}
