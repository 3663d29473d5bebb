// Package respond writes the JSON bodies shared by every HTTP handler.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of error replies.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v with status. Encoding failures after the header is
// sent can only be logged.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("encode response")
	}
}

// WriteError writes an ErrorResponse whose error field is the status text.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: http.StatusText(status), Code: status, Message: message})
}

func WriteBadRequest(w http.ResponseWriter, message string) { WriteError(w, http.StatusBadRequest, message) }

func WriteNotFound(w http.ResponseWriter, message string) { WriteError(w, http.StatusNotFound, message) }

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
