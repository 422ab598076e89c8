package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"threads/internal/apperr"
	"threads/internal/auth"
	"threads/internal/config"
	"threads/internal/constants"
	"threads/internal/db"
	"threads/internal/models"
	"threads/internal/ws"
)

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type WebSocketHandler struct {
	hub      *ws.Hub
	tokens   *auth.TokenService
	users    userFinder
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, tokens *auth.TokenService, users userFinder, cfg config.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
		users:  users,
		cfg:    cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeWS authenticates the upgrade with ?token=<access token>. The connection
// lives no longer than that token.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if bearer, ok := bearerToken(r); ok {
			token = bearer
		}
	}
	if token == "" {
		unauthorized(w, constants.ErrCodeAuthFailed, "Missing token")
		return
	}

	claims, err := h.tokens.VerifyAccessToken(token)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			unauthorized(w, appErr.Code, appErr.Message)
			return
		}
		unauthorized(w, constants.ErrCodeAuthFailed, "Invalid token")
		return
	}

	user, err := h.users.FindByID(r.Context(), claims.UserID)
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, constants.ErrCodeAuthFailed, "Invalid token")
		return
	}
	if err != nil {
		slog.Error("error loading websocket user", "component", "ws", "user_id", claims.UserID, "error", err)
		internalError(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "component", "ws", "error", err)
		return
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	client := ws.NewClient(h.hub, conn, user, uuid.NewString(), ws.ClientOptions{
		SendBuffer: h.cfg.SendBuffer,
		JoinRate:   rate.Limit(h.cfg.JoinRate),
		JoinBurst:  h.cfg.JoinBurst,
		ExpiresAt:  expiresAt,
	})
	client.SendHello()

	go client.WritePump()
	go client.ReadPump()
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if isLoopbackOrigin(origin) {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if originMatchesAllowed(origin, allowed) {
			return true
		}
	}
	return false
}

// originMatchesAllowed compares exactly, or by prefix when allowed ends in "*".
func originMatchesAllowed(origin, allowed string) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" {
		return false
	}
	if prefix, ok := strings.CutSuffix(allowed, "*"); ok {
		return strings.HasPrefix(origin, prefix)
	}
	return origin == allowed
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
