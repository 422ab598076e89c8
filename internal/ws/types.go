package ws

import (
	"encoding/json"

	"threads/internal/constants"
)

// Operation codes for WebSocket messages
type OpCode int

// ProtocolVersion is the exact server/client WS protocol version.
// Bump this only for breaking wire-contract changes.
const ProtocolVersion = 1

const (
	// DISPATCH - Events and commands with type field
	OpDispatch OpCode = 0

	// Lifecycle ops (Server -> Client)
	OpHello          OpCode = 1 // Sent on connection, before setup
	OpInvalidSession OpCode = 3 // Access token expired, reconnect with a fresh one
)

// Event types (Server -> Client via DISPATCH)
const (
	EventConnected      = "connected"
	EventReceiveMessage = "receiveMessage"
	EventRoomJoined     = "roomJoined"
	EventError          = "error"
)

// Command types (Client -> Server via DISPATCH)
const (
	CmdSetup    = "setup"
	CmdJoinRoom = "joinRoom"
)

// Error codes sent in EventError payloads.
const (
	ErrCodeAuthExpired    = constants.ErrCodeAuthExpired
	ErrCodeForbidden      = constants.ErrCodeForbidden
	ErrCodeInvalidRequest = constants.ErrCodeInvalidRequest
	ErrCodeInternal       = constants.ErrCodeInternal
	ErrCodeNotSetUp       = constants.ErrCodeNotSetUp
	ErrCodeRateLimited    = constants.ErrCodeRateLimited
	ErrCodeUnknownCommand = constants.ErrCodeUnknownCommand
)

type WSMessage struct {
	Op   OpCode `json:"op"`
	Type string `json:"t,omitempty"` // Event/command type (only for DISPATCH)
	Data any    `json:"d,omitempty"`
	Seq  *int64 `json:"s,omitempty"`
}

// incomingMessage defers decoding of the payload until the command is known.
type incomingMessage struct {
	Op   OpCode          `json:"op"`
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// Server -> Client payloads

type HelloPayload struct {
	ProtocolVersion int `json:"protocolVersion"`
}

// ConnectedPayload acknowledges setup once the personal room is joined.
type ConnectedPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type RoomJoinedPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// ErrorPayload sent when the server rejects a client action
type ErrorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter,omitempty"` // Unix ms timestamp
}

// Client -> Server payloads (via DISPATCH)

// SetupPayload may carry the user the client believes it is. The server
// ignores it and always uses the authenticated user.
type SetupPayload struct {
	User *struct {
		ID string `json:"id"`
	} `json:"user,omitempty"`
}

type JoinRoomPayload struct {
	ChatID string `json:"chatId"`
}
