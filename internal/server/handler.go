package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/howard-nolan/chatproxy/internal/provider"
)

// chatRequest is the body of POST /api.php. Agent is the model id chosen
// in the UI.
type chatRequest struct {
	Text   string `json:"text"`
	Action string `json:"action"`
	Agent  string `json:"agent"`
}

// handleHealth reports liveness plus whether the chat store is connected.
// It always answers 200: a process without a database still serves chat.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeState := "disconnected"
	if s.store.Ready() {
		storeState = "connected"
		if err := s.store.Ping(r.Context()); err != nil {
			storeState = "unreachable"
		}
	}
	s.writeOK(w, r, map[string]string{
		"status": "ok",
		"store":  storeState,
	}, "")
}

// handleChat handles POST /api.php: validate the text, pick a provider
// from the agent, make exactly one upstream call and return its text.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.writeError(w, r, http.StatusBadRequest, "Input text cannot be empty.")
		return
	}

	model := req.Agent
	if model == "" {
		model = s.cfg.Server.DefaultModel
	}
	action := req.Action
	if action == "" {
		action = provider.ActionGenericChat
	}

	call, err := s.selector.Select(model, action, text)
	if err != nil {
		s.log.Error("building provider call",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("model", model),
			zap.Error(err),
		)
		s.writeError(w, r, http.StatusInternalServerError, msgServerError)
		return
	}

	// r.Context() is cancelled when the client disconnects, which aborts
	// the upstream call too.
	res := s.invoker.Invoke(r.Context(), call)
	if !res.Success {
		s.requestLog.Record(action, failureStatus(res), text, len(res.ErrorMessage))
		s.writeError(w, r, http.StatusInternalServerError, res.ErrorMessage)
		return
	}

	s.requestLog.Record(action, "Success", text, len(res.Text))
	s.log.Debug("provider call succeeded",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Stringer("provider", call.Provider),
		zap.String("model", call.Request.Model),
		zap.Int("result_length", len(res.Text)),
	)
	s.writeOK(w, r, res.Text, "Success")
}

// failureStatus is the request log status for a failed call.
func failureStatus(res provider.Result) string {
	var uerr *provider.UpstreamError
	if errors.As(res.Err, &uerr) {
		if uerr.ParseErr != nil {
			return "Parse Error"
		}
		return fmt.Sprintf("API Error %d", uerr.StatusCode)
	}
	return "Network Error"
}
