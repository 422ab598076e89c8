package ws

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"threads/internal/constants"
	"threads/internal/events"
	"threads/internal/metrics"
)

const (
	// maxDroppedMessagesBeforeDisconnect is the threshold for disconnecting slow clients
	maxDroppedMessagesBeforeDisconnect = 100
)

// MembershipChecker reports whether a user participates in a conversation.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// registerRequest is used for synchronous registration with a callback
type registerRequest struct {
	client *Client
	done   chan struct{}
}

type room map[*Client]struct{}

// Hub owns the runtime room registry. Every connection that completed setup
// sits in its user's personal room; a connection additionally joins the
// conversation rooms it is viewing. Nothing here is persisted.
type Hub struct {
	clients       map[*Client]bool
	personalRooms map[string]room
	chatRooms     map[string]room
	registerSync  chan registerRequest
	unregister    chan *Client
	events        chan events.Event
	shutdown      chan struct{}
	members       MembershipChecker
	publisher     events.Publisher
	sequence      int64
	mu            sync.RWMutex
}

func NewHub(members MembershipChecker, publisher events.Publisher) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		personalRooms: make(map[string]room),
		chatRooms:     make(map[string]room),
		registerSync:  make(chan registerRequest),
		unregister:    make(chan *Client),
		events:        make(chan events.Event, constants.WSEventBufferSize),
		shutdown:      make(chan struct{}),
		members:       members,
		publisher:     publisher,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for client := range h.clients {
				client.CloseSend()
				delete(h.clients, client)
			}
			h.personalRooms = make(map[string]room)
			h.chatRooms = make(map[string]room)
			h.mu.Unlock()
			metrics.WSConnections.Set(0)
			slog.Info("shutdown complete", "component", "hub")
			return

		case req := <-h.registerSync:
			h.mu.Lock()
			h.clients[req.client] = true
			userID := req.client.user.ID
			if h.personalRooms[userID] == nil {
				h.personalRooms[userID] = make(room)
			}
			h.personalRooms[userID][req.client] = struct{}{}
			h.mu.Unlock()
			metrics.WSConnections.Inc()
			close(req.done)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.leaveAllLocked(client)
				client.CloseSend()
				metrics.WSConnections.Dec()
			}
			h.mu.Unlock()

		case evt := <-h.events:
			h.dispatch(evt)
		}
	}
}

// HandleEvent queues an event from the bus for delivery. It never blocks the
// publisher; events are dropped when the queue is full.
func (h *Hub) HandleEvent(evt events.Event) {
	select {
	case h.events <- evt:
	default:
		slog.Warn("hub event queue full, dropping event", "component", "hub", "type", evt.Type())
	}
}

func (h *Hub) dispatch(evt events.Event) {
	switch e := evt.(type) {
	case events.MessageReceived:
		h.deliverMessage(e)
	case events.RoomJoined:
		h.SendToRoom(e.ConversationID, EventRoomJoined, RoomJoinedPayload{
			ChatID: e.ConversationID,
			UserID: e.UserID,
		})
	}
}

// deliverMessage writes the message once to each connection in the personal
// room of every recipient. The sender's connections never receive it.
func (h *Hub) deliverMessage(e events.MessageReceived) {
	msg := h.dispatchMessage(EventReceiveMessage, e.Message)
	senderID := e.Message.Sender.ID

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, userID := range e.RecipientIDs {
		if userID == senderID {
			continue
		}
		for client := range h.personalRooms[userID] {
			if _, ok := seen[client]; ok {
				continue
			}
			seen[client] = struct{}{}
			if h.sendToClientLocked(client, msg) {
				metrics.MessageDeliveries.Inc()
			}
		}
	}
}

// Caller must hold at least a read lock on h.mu.
func (h *Hub) sendToClientLocked(client *Client, msg *WSMessage) bool {
	if !client.IsSetUp() {
		return false
	}
	select {
	case client.send <- msg:
		return true
	default:
		// Client buffer full - track the drop
		dropped := atomic.AddInt64(&client.DroppedMessages, 1)
		metrics.WSDroppedMessages.Inc()

		// Log warning periodically (every 10 drops)
		if dropped%10 == 1 {
			slog.Warn("dropped messages for slow client", "component", "hub", "dropped", dropped, "user_id", client.getUserID())
		}

		// Disconnect clients that fall too far behind
		if dropped >= maxDroppedMessagesBeforeDisconnect {
			slog.Warn("disconnecting slow client", "component", "hub", "user_id", client.getUserID(), "dropped", dropped)
			// Close will be handled by the client's pumps
			client.Close()
		}
		return false
	}
}

func (h *Hub) nextSequence() int64 {
	return atomic.AddInt64(&h.sequence, 1)
}

func (h *Hub) dispatchMessage(eventType string, data any) *WSMessage {
	seq := h.nextSequence()
	return &WSMessage{Op: OpDispatch, Type: eventType, Data: data, Seq: &seq}
}

// SendToRoom sends a DISPATCH to every connection viewing conversationID.
func (h *Hub) SendToRoom(conversationID string, eventType string, data any) {
	msg := h.dispatchMessage(eventType, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.chatRooms[conversationID] {
		h.sendToClientLocked(client, msg)
	}
}

// joinChatRoom adds client to the conversation room. It reports false if the
// client was already there.
func (h *Hub) joinChatRoom(client *Client, conversationID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return false
	}
	r := h.chatRooms[conversationID]
	if r == nil {
		r = make(room)
		h.chatRooms[conversationID] = r
	}
	if _, ok := r[client]; ok {
		return false
	}
	r[client] = struct{}{}
	client.rooms[conversationID] = struct{}{}
	return true
}

// Caller must hold h.mu.
func (h *Hub) leaveAllLocked(client *Client) {
	if client.user != nil {
		if r := h.personalRooms[client.user.ID]; r != nil {
			delete(r, client)
			if len(r) == 0 {
				delete(h.personalRooms, client.user.ID)
			}
		}
	}
	for conversationID := range client.rooms {
		if r := h.chatRooms[conversationID]; r != nil {
			delete(r, client)
			if len(r) == 0 {
				delete(h.chatRooms, conversationID)
			}
		}
		delete(client.rooms, conversationID)
	}
}

type Snapshot struct {
	Connections   int            `json:"connections"`
	PersonalRooms map[string]int `json:"personalRooms"`
	ChatRooms     map[string]int `json:"chatRooms"`
}

// Snapshot reports connection counts per room.
func (h *Hub) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Snapshot{
		Connections:   len(h.clients),
		PersonalRooms: make(map[string]int, len(h.personalRooms)),
		ChatRooms:     make(map[string]int, len(h.chatRooms)),
	}
	for id, r := range h.personalRooms {
		s.PersonalRooms[id] = len(r)
	}
	for id, r := range h.chatRooms {
		s.ChatRooms[id] = len(r)
	}
	return s
}

func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.personalRooms[userID]) > 0
}

func (h *Hub) Shutdown() {
	close(h.shutdown)
}
