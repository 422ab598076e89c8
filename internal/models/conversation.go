package models

import (
	"slices"
	"time"
)

type Conversation struct {
	ID            string        `json:"id"`
	IsGroup       bool          `json:"isGroupChat"`
	Participants  []UserSummary `json:"users"`
	LatestMessage *Message      `json:"latestMessage,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the conversation's participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// ActivityAt is the timestamp used to order conversation lists: the latest
// message's creation time, or the conversation's own creation time when empty.
func (c *Conversation) ActivityAt() time.Time {
	if c.LatestMessage != nil {
		return c.LatestMessage.CreatedAt
	}
	return c.CreatedAt
}

// SortConversations orders convs by ActivityAt, newest first. Ties keep their input order.
func SortConversations(convs []*Conversation) {
	slices.SortStableFunc(convs, func(a, b *Conversation) int {
		return b.ActivityAt().Compare(a.ActivityAt())
	})
}
