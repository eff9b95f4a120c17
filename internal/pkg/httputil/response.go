package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
)

// maxBodyBytes bounds request bodies. Every endpoint takes a tiny JSON object.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// JSON writes a JSON response with the given status code. If encoding fails
// the error is logged; the status line is already sent.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode error", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes a JSON error response. Use for client errors (4xx).
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Success: false, Error: message})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized writes a 401 error.
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "Unauthorized")
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter) {
	Error(w, http.StatusNotFound, "Not found")
}

// InternalError writes a 500 error. Logs the real error but returns
// publicMsg to the client (never leak internals).
func InternalError(w http.ResponseWriter, err error, publicMsg string) {
	logger.Error("httputil: internal error", "public", publicMsg, "error", err)
	Error(w, http.StatusInternalServerError, publicMsg)
}

// Decode reads a JSON object from the request body into dst.
// Returns false and writes a 400 response if parsing fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Debug("httputil: bad request body", "error", err)
		}
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}
