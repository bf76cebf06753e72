package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"study-bot/internal/repo"
)

// envelope is the fixed response shape for every admin API endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, envelope{Success: false, Message: message})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

// writeStoreError maps repository failures onto the envelope status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	s.logger.Error("admin api store call failed", "action", action, "error", err)
	if s.metrics != nil {
		s.metrics.Errors.WithLabelValues("http").Inc()
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSONBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}
