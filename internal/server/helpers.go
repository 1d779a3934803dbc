package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// errorResponse is the body of every non-2xx JSON reply
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// splitID parses "<id>[/<sub>]" after prefix. ok is false when id is empty.
func splitID(path, prefix string) (id, sub string, ok bool) {
	id, sub, _ = strings.Cut(strings.TrimPrefix(path, prefix), "/")
	return id, sub, id != ""
}
