package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"threads/internal/chat"
	"threads/internal/constants"
	"threads/internal/db"
)

const defaultMessageHistoryLimit = 50

type MessageHandler struct {
	chats *chat.Service
}

func NewMessageHandler(chats *chat.Service) *MessageHandler {
	return &MessageHandler{chats: chats}
}

// POST /api/message
type SendMessageRequest struct {
	ChatID  string `json:"chatId" validate:"required,max=64"`
	Content string `json:"content"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	msg, err := h.chats.SendMessage(r.Context(), GetUserID(r), req.ChatID, req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// GET /api/message/{chatId}
func (h *MessageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, beforeID, validationMessage, ok := parseHistoryQuery(r)
	if !ok {
		badRequest(w, validationMessage)
		return
	}

	msgs, err := h.chats.History(r.Context(), GetUserID(r), chi.URLParam(r, "chatId"), beforeID, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func parseHistoryQuery(r *http.Request) (int, string, string, bool) {
	limitStr := strings.TrimSpace(r.URL.Query().Get("limit"))
	beforeID := strings.TrimSpace(r.URL.Query().Get("before"))

	limit := defaultMessageHistoryLimit
	if limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, "", "Query parameter 'limit' must be an integer", false
		}
		if parsedLimit <= 0 || parsedLimit > constants.MessageHistoryMaxLimit {
			return 0, "", fmt.Sprintf("Query parameter 'limit' must be between 1 and %d", constants.MessageHistoryMaxLimit), false
		}
		limit = parsedLimit
	}

	if beforeID != "" && !db.IsValidID("msg", beforeID) {
		return 0, "", "Query parameter 'before' must be a valid message ID", false
	}

	return limit, beforeID, "", true
}
