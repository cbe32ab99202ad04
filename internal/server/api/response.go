// Package api provides the HTTP API handlers of the recognition server.
package api

import (
	"encoding/json"
	"net/http"
)

// Status values of message responses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type errorResponse struct {
	Error string `json:"error"`
}

// messageResponse is the {status, message} envelope the browser client reads.
type messageResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Label   string  `json:"label,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeMessage(w http.ResponseWriter, status int, resp messageResponse) {
	writeJSON(w, status, resp)
}
