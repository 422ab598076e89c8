package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"threads/internal/events"
	"threads/internal/models"
)

// ClientState represents the lifecycle state of a WebSocket client
type ClientState int32

const (
	ClientStateConnected ClientState = iota // WS connected and authenticated, awaiting setup
	ClientStateSetUp                        // In the personal room, processing commands
	ClientStateClosing                      // Shutdown initiated
	ClientStateClosed                       // Terminal
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 15 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Timeout for hub registration
	registerTimeout = 5 * time.Second

	// Timeout for the membership lookup behind joinRoom
	joinRoomTimeout = 5 * time.Second
)

type ClientOptions struct {
	SendBuffer int
	JoinRate   rate.Limit
	JoinBurst  int
	// ExpiresAt is when the access token used at upgrade expires. Zero means never.
	ExpiresAt time.Time
}

// Client represents a single WebSocket connection
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan *WSMessage
	done          chan struct{}
	doneOnce      sync.Once
	connCloseOnce sync.Once

	// Lifecycle state
	state atomic.Int32

	user      *models.User
	sessionID string
	expiresAt time.Time

	// rooms holds the conversation rooms this connection joined. Guarded by hub.mu.
	rooms map[string]struct{}

	// DroppedMessages tracks how many messages have been dropped due to full buffer
	DroppedMessages int64

	// Only accessed from the ReadPump goroutine
	joinLimiter *rate.Limiter
}

// NewClient creates a client for a connection already authenticated as user.
func NewClient(hub *Hub, conn *websocket.Conn, user *models.User, sessionID string, opts ClientOptions) *Client {
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan *WSMessage, opts.SendBuffer),
		done:        make(chan struct{}),
		user:        user,
		sessionID:   sessionID,
		expiresAt:   opts.ExpiresAt,
		rooms:       make(map[string]struct{}),
		joinLimiter: rate.NewLimiter(opts.JoinRate, opts.JoinBurst),
	}
	c.state.Store(int32(ClientStateConnected))
	return c
}

func (c *Client) closeConn() {
	c.doneOnce.Do(func() { close(c.done) })
	c.connCloseOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Close performs cleanup for the client, ensuring it only happens once
func (c *Client) Close() {
	if !c.transitionTo(ClientStateClosing) {
		// Already closing/closed, but still ensure conn is closed
		c.closeConn()
		return
	}
	c.closeConn()
	c.transitionTo(ClientStateClosed)
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "component", "ws", "user_id", c.getUserID(), "error", err)
			}
			break
		}

		var msg incomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError(ErrCodeInvalidRequest, "Malformed message")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			if c.IsClosed() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				slog.Warn("websocket write error", "component", "ws", "user_id", c.getUserID(), "error", err)
				return
			}

		case <-ticker.C:
			if c.IsClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if c.tokenExpired(time.Now()) {
				c.conn.WriteJSON(&WSMessage{Op: OpInvalidSession})
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Access tokens expire absolutely; a connection authenticated with one does not outlive it.
func (c *Client) tokenExpired(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

// getUserID returns the user ID or "unknown" if not set
func (c *Client) getUserID() string {
	if c.user != nil {
		return c.user.ID
	}
	return "unknown"
}

// SendHello queues the HELLO message that precedes setup
func (c *Client) SendHello() {
	c.queue(&WSMessage{Op: OpHello, Data: HelloPayload{ProtocolVersion: ProtocolVersion}})
}

// queue writes directly to this connection, bypassing setup checks.
func (c *Client) queue(msg *WSMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		atomic.AddInt64(&c.DroppedMessages, 1)
	}
}

func (c *Client) sendError(code, message string) {
	c.queue(&WSMessage{Op: OpDispatch, Type: EventError, Data: ErrorPayload{Code: code, Message: message}})
}

func (c *Client) handleMessage(msg *incomingMessage) {
	switch msg.Op {
	case OpDispatch:
		c.handleDispatch(msg)
	default:
		c.sendError(ErrCodeUnknownCommand, "Unknown op code")
	}
}

// handleDispatch routes DISPATCH messages by their type
func (c *Client) handleDispatch(msg *incomingMessage) {
	switch msg.Type {
	case CmdSetup:
		c.handleSetup(msg)
	case CmdJoinRoom:
		c.handleJoinRoom(msg)
	default:
		c.sendError(ErrCodeUnknownCommand, "Unknown command: "+msg.Type)
	}
}

// handleSetup joins the authenticated user's personal room. A user id in the
// payload is ignored, so a client can never join another user's room.
func (c *Client) handleSetup(msg *incomingMessage) {
	if c.State() != ClientStateConnected {
		return
	}

	if len(msg.Data) > 0 {
		var payload SetupPayload
		if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.User != nil && payload.User.ID != "" && payload.User.ID != c.user.ID {
			slog.Warn("setup payload names another user", "component", "ws", "user_id", c.user.ID, "claimed_id", payload.User.ID)
		}
	}

	// Register synchronously so the personal room exists before "connected"
	done := make(chan struct{})
	select {
	case c.hub.registerSync <- registerRequest{client: c, done: done}:
		select {
		case <-done:
		case <-time.After(registerTimeout):
			slog.Error("registration timeout", "component", "ws", "user_id", c.user.ID)
			return
		}
	case <-time.After(registerTimeout):
		slog.Error("registration send timeout", "component", "ws", "user_id", c.user.ID)
		return
	case <-c.hub.shutdown:
		return
	}

	if !c.transitionTo(ClientStateSetUp) {
		return // Race: closed while registering
	}

	c.queue(&WSMessage{
		Op:   OpDispatch,
		Type: EventConnected,
		Data: ConnectedPayload{SessionID: c.sessionID, UserID: c.user.ID},
	})

	slog.Info("client set up", "component", "ws", "user_id", c.user.ID, "session_id", c.sessionID)
}

// handleJoinRoom joins a conversation room after checking membership.
// Joining a room twice is a no-op apart from the acknowledgement.
func (c *Client) handleJoinRoom(msg *incomingMessage) {
	if !c.IsSetUp() {
		c.sendError(ErrCodeNotSetUp, "Send setup before joinRoom")
		return
	}

	var payload JoinRoomPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ChatID == "" {
		// Bare string payloads are accepted too: {"t":"joinRoom","d":"cnv_..."}
		if err := json.Unmarshal(msg.Data, &payload.ChatID); err != nil || payload.ChatID == "" {
			c.sendError(ErrCodeInvalidRequest, "chatId is required")
			return
		}
	}

	now := time.Now()
	if r := c.joinLimiter.ReserveN(now, 1); !r.OK() || r.DelayFrom(now) > 0 {
		delay := r.DelayFrom(now)
		r.CancelAt(now)
		c.queue(&WSMessage{
			Op:   OpDispatch,
			Type: EventError,
			Data: ErrorPayload{Code: ErrCodeRateLimited, Message: "Joining rooms too fast", RetryAfter: now.Add(delay).UnixMilli()},
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), joinRoomTimeout)
	defer cancel()

	ok, err := c.hub.members.IsParticipant(ctx, payload.ChatID, c.user.ID)
	if err != nil {
		slog.Error("error checking room membership", "component", "ws", "user_id", c.user.ID, "chat_id", payload.ChatID, "error", err)
		c.sendError(ErrCodeInternal, "Could not join room")
		return
	}
	if !ok {
		c.sendError(ErrCodeForbidden, "You are not a participant in this conversation")
		return
	}

	if !c.hub.joinChatRoom(c, payload.ChatID) {
		// Already in the room; acknowledge to this connection only.
		c.queue(&WSMessage{Op: OpDispatch, Type: EventRoomJoined, Data: RoomJoinedPayload{ChatID: payload.ChatID, UserID: c.user.ID}})
		return
	}

	evt := events.RoomJoined{ConversationID: payload.ChatID, UserID: c.user.ID}
	if err := c.hub.publisher.Publish(ctx, evt); err != nil {
		slog.Error("error publishing room join", "component", "ws", "chat_id", payload.ChatID, "error", err)
	}
}

// State returns the current client state
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// IsSetUp returns true once the client is in its personal room
func (c *Client) IsSetUp() bool {
	return c.State() == ClientStateSetUp
}

// IsClosed returns true if the client is closing or closed
func (c *Client) IsClosed() bool {
	state := c.State()
	return state == ClientStateClosing || state == ClientStateClosed
}

// isValidClientTransition checks if a state transition is valid
func isValidClientTransition(from, to ClientState) bool {
	switch from {
	case ClientStateConnected:
		return to == ClientStateSetUp || to == ClientStateClosing
	case ClientStateSetUp:
		return to == ClientStateClosing
	case ClientStateClosing:
		return to == ClientStateClosed
	case ClientStateClosed:
		return false
	}
	return false
}

// transitionTo atomically transitions to a new state if valid
func (c *Client) transitionTo(newState ClientState) bool {
	for {
		current := ClientState(c.state.Load())
		if !isValidClientTransition(current, newState) {
			return false
		}
		if c.state.CompareAndSwap(int32(current), int32(newState)) {
			return true
		}
	}
}

// CloseSend stops the write pump and closes the connection (called by hub during cleanup).
// The send channel itself is never closed, so late writers cannot panic.
func (c *Client) CloseSend() {
	if c.transitionTo(ClientStateClosing) {
		c.closeConn()
		c.transitionTo(ClientStateClosed)
	}
}
