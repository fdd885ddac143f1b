package handler

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the error body shape shared with the conversation
// backend, so a renderer decodes failures from either source the same
// way.
type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}
