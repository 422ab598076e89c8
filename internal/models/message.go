package models

import "time"

type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"chatId"`
	Sender         UserSummary `json:"sender"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"createdAt"`
}
