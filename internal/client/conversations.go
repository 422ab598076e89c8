package client

import (
	"sync"

	"threads/internal/models"
)

// ConversationList is the client's view of its conversations. After every
// mutation it is ordered by latest message time, newest first.
type ConversationList struct {
	mu    sync.Mutex
	convs []*models.Conversation
}

func NewConversationList() *ConversationList {
	return &ConversationList{}
}

func (l *ConversationList) Replace(convs []*models.Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.convs = make([]*models.Conversation, 0, len(convs))
	for _, c := range convs {
		cp := *c
		l.convs = append(l.convs, &cp)
	}
	models.SortConversations(l.convs)
}

// Upsert adds conv or replaces the entry with the same id. A newer latest
// message already known locally is kept.
func (l *ConversationList) Upsert(conv *models.Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *conv
	for i, c := range l.convs {
		if c.ID == conv.ID {
			if c.LatestMessage != nil && (cp.LatestMessage == nil || c.LatestMessage.CreatedAt.After(cp.LatestMessage.CreatedAt)) {
				cp.LatestMessage = c.LatestMessage
			}
			l.convs[i] = &cp
			models.SortConversations(l.convs)
			return
		}
	}
	l.convs = append(l.convs, &cp)
	models.SortConversations(l.convs)
}

// ApplyMessage advances the matching conversation's latest message, whether
// msg came from an API response or a realtime push. It reports false when the
// conversation is not in the list yet.
func (l *ConversationList) ApplyMessage(msg *models.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, c := range l.convs {
		if c.ID != msg.ConversationID {
			continue
		}
		if c.LatestMessage == nil || !msg.CreatedAt.Before(c.LatestMessage.CreatedAt) {
			cp := *c
			m := *msg
			cp.LatestMessage = &m
			l.convs[i] = &cp
			models.SortConversations(l.convs)
		}
		return true
	}
	return false
}

// Snapshot returns the conversations in display order.
func (l *ConversationList) Snapshot() []*models.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*models.Conversation, len(l.convs))
	copy(out, l.convs)
	return out
}
