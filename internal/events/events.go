// Package events carries typed realtime events from the services that
// produce them to the transports that deliver them.
package events

import (
	"context"
	"log/slog"
	"sync"

	"threads/internal/models"
)

type Type string

const (
	TypeMessageReceived Type = "message_received"
	TypeRoomJoined      Type = "room_joined"
)

// Event is implemented only by the payload types in this package.
type Event interface {
	Type() Type
}

// MessageReceived is published after a message has been persisted.
// RecipientIDs lists every participant except the sender.
type MessageReceived struct {
	Message      models.Message `json:"message"`
	RecipientIDs []string       `json:"recipientIds"`
}

func (MessageReceived) Type() Type { return TypeMessageReceived }

// RoomJoined is published when a connection joins a conversation room.
type RoomJoined struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (RoomJoined) Type() Type { return TypeRoomJoined }

type Handler func(Event)

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus dispatches events in-process, synchronously, to every subscriber.
// Handlers must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
	slog.Debug("event published", "component", "events", "type", e.Type(), "subscribers", len(handlers))
	return nil
}
