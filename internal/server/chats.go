package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/howard-nolan/chatproxy/internal/store"
)

type historyRequest struct {
	UserID string `json:"userId"`
}

type getChatRequest struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// handleSaveUser handles POST /api/save-user. The body is the identity
// provider's profile, stored as-is and keyed by its email.
func (s *Server) handleSaveUser(w http.ResponseWriter, r *http.Request) {
	var user store.UserRecord
	if !s.readJSON(w, r, &user) {
		return
	}

	res, err := s.store.SaveUser(r.Context(), user)
	if err != nil {
		s.writeStoreError(w, r, "save user", err)
		return
	}
	s.writeOK(w, r, map[string]any{"result": res}, "User saved")
}

// handleSaveChat handles POST /api/save-chat: a whole-document upsert.
func (s *Server) handleSaveChat(w http.ResponseWriter, r *http.Request) {
	var chat store.Chat
	if !s.readJSON(w, r, &chat) {
		return
	}

	res, err := s.store.SaveChat(r.Context(), &chat)
	if err != nil {
		s.writeStoreError(w, r, "save chat", err)
		return
	}
	s.writeOK(w, r, map[string]any{"result": res}, "Chat saved")
}

// handleGetHistory handles POST /api/get-history.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	history, err := s.store.ListHistory(r.Context(), req.UserID)
	if err != nil {
		s.writeStoreError(w, r, "get history", err)
		return
	}
	s.writeOK(w, r, map[string]any{"history": history}, "")
}

// handleGetChat handles POST /api/get-chat. A chat owned by someone else
// is reported exactly like a missing one.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	var req getChatRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	chat, err := s.store.GetChat(r.Context(), req.ChatID, req.UserID)
	if err != nil {
		s.writeStoreError(w, r, "get chat", err)
		return
	}
	s.writeOK(w, r, map[string]any{"chat": chat}, "")
}

// writeStoreError maps the store's error taxonomy to a status code.
// Unexpected errors are logged and hidden behind a generic message.
// A ValidationError carries its own client-facing message, so it is
// matched with errors.As; the sentinels are matched with errors.Is.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, r, http.StatusBadRequest, verr.Message)
	case errors.Is(err, store.ErrStoreUnavailable):
		s.writeError(w, r, http.StatusServiceUnavailable, msgDBUnavailable)
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "Chat not found")
	default:
		s.log.Error(op+" failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		s.writeError(w, r, http.StatusInternalServerError, msgServerError)
	}
}
