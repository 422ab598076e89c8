package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"

	"threads/internal/auth"
	"threads/internal/chat"
	"threads/internal/config"
	"threads/internal/db"
	"threads/internal/metrics"
	"threads/internal/posts"
	"threads/internal/social"
	"threads/internal/ws"
)

type Server struct {
	router *chi.Mux
	config *config.Config
	hub    *ws.Hub
}

func NewServer(
	cfg *config.Config,
	database *db.DB,
	authenticator *auth.Authenticator,
	chats *chat.Service,
	socialService *social.Service,
	postService *posts.Service,
	users userFinder,
	hub *ws.Hub,
) (*Server, error) {
	resolver, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("initializing client IP resolver: %w", err)
	}

	tokens := authenticator.Tokens()
	cookie := auth.RefreshCookie{
		Secure: cfg.Auth.SecureCookies(),
		Domain: cfg.Auth.CookieDomain,
	}

	authHandler := NewAuthHandler(authenticator, cookie)
	chatHandler := NewChatHandler(chats)
	messageHandler := NewMessageHandler(chats)
	userHandler := NewUserHandler(socialService, hub)
	postHandler := NewPostHandler(postService)
	wsHandler := NewWebSocketHandler(hub, tokens, users, cfg.WebSocket)
	healthHandler := NewHealthHandler(database, hub)

	authMiddleware := NewAuthMiddleware(tokens)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(cfg.Server.MaxBodyBytes))

		r.Route("/auth", func(r chi.Router) {
			r.With(rateLimit(10, time.Minute, resolver)).Post("/signup", authHandler.Signup)
			r.With(rateLimit(10, time.Minute, resolver)).Post("/login", authHandler.Login)
			r.With(rateLimit(30, time.Minute, resolver)).Post("/refresh", authHandler.Refresh)
			r.With(authMiddleware.OptionalAuth).Post("/logout", authHandler.Logout)
		})

		r.Route("/posts", func(r chi.Router) {
			r.With(authMiddleware.OptionalAuth).Get("/", postHandler.Feed)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Post("/", postHandler.Create)
				r.Get("/{id}", postHandler.Get)
				r.Delete("/{id}", postHandler.Delete)
				r.Patch("/{id}/like", postHandler.ToggleLike)
				r.Patch("/{id}/comment", postHandler.AddComment)
				r.Delete("/{postId}/comment/{commentId}", postHandler.DeleteComment)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)

			r.Post("/chat", chatHandler.AccessChat)
			r.Get("/chat/sidebar", chatHandler.Sidebar)

			r.Post("/message", messageHandler.Send)
			r.Get("/message/{chatId}", messageHandler.GetHistory)

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", userHandler.GetMe)
				r.Get("/search", userHandler.Search)
				r.Patch("/profile", userHandler.UpdateProfile)
				r.Get("/{id}", userHandler.GetProfile)
				r.Patch("/{id}/follow", userHandler.Follow)
				r.Patch("/{id}/unfollow", userHandler.Unfollow)
			})
		})
	})

	r.With(rateLimit(30, time.Minute, resolver)).Get("/ws", wsHandler.ServeWS)

	return &Server{
		router: r,
		config: cfg,
		hub:    hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

// corsMiddleware allows credentialed requests from the configured origins and
// from loopback origins used during development.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOriginValidator(func(origin string) bool {
			if isLoopbackOrigin(origin) {
				return true
			}
			for _, allowed := range allowedOrigins {
				if originMatchesAllowed(origin, allowed) {
					return true
				}
			}
			return false
		}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.AllowCredentials(),
		handlers.MaxAge(3600),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
