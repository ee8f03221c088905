package api

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the JSON body for error replies.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
// Encoding failures are logged nowhere useful at this point; the status
// line has already been sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // Headers already sent
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeBadRequest writes a 400 response.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

// writeNotFound writes a 404 response.
func writeNotFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

// writeBadGateway writes a 502 response for failed upstream calls.
func writeBadGateway(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadGateway, msg)
}

// writeInternalError writes a 500 response.
func writeInternalError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusInternalServerError, msg)
}
