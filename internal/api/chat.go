package api

import (
	"net/http"

	"threads/internal/chat"
)

type ChatHandler struct {
	chats *chat.Service
}

func NewChatHandler(chats *chat.Service) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// POST /api/chat
type AccessChatRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

// AccessChat returns the caller's conversation with another user, creating it
// the first time either side opens it.
func (h *ChatHandler) AccessChat(w http.ResponseWriter, r *http.Request) {
	var req AccessChatRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	conv, err := h.chats.AccessOrCreateConversation(r.Context(), GetUserID(r), req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GET /api/chat/sidebar
func (h *ChatHandler) Sidebar(w http.ResponseWriter, r *http.Request) {
	sidebar, err := h.chats.Sidebar(r.Context(), GetUserID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sidebar)
}
