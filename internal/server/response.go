package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	msgInvalidJSON   = "Invalid JSON input or server error."
	msgBodyTooLarge  = "Request body too large."
	msgDBUnavailable = "Database not connected"
	msgServerError   = "Server Error"
)

// envelope is the response shape shared by every API endpoint. Data and
// Message are omitted when empty; Timestamp is stamped in writeJSON, so
// handlers never set it themselves.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, env envelope) {
	env.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.log.Warn("writing response",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
}

func (s *Server) writeOK(w http.ResponseWriter, r *http.Request, data any, message string) {
	s.writeJSON(w, r, http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, envelope{Success: false, Message: message})
}

// readJSON reads the whole body, bounded by the configured limit, and
// decodes it into v. On failure it writes the 400/413 response itself and
// returns false.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := s.cfg.Server.MaxBodyBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return false
		}
		s.writeError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		s.log.Debug("rejecting malformed body",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		s.writeError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return false
	}
	return true
}
