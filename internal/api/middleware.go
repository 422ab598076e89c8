package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"threads/internal/apperr"
	"threads/internal/auth"
	"threads/internal/constants"
)

type contextKey string

const userIDKey contextKey = "userID"

type AuthMiddleware struct {
	tokens *auth.TokenService
}

func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth rejects requests without a valid access token. An expired token
// is reported as AUTH_EXPIRED so clients know to refresh.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, constants.ErrCodeAuthFailed, "Authorization header required")
			return
		}

		claims, err := m.tokens.VerifyAccessToken(token)
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				unauthorized(w, appErr.Code, appErr.Message)
				return
			}
			unauthorized(w, constants.ErrCodeAuthFailed, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth attaches the user when a valid access token is present and
// otherwise lets the request through anonymously.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if claims, err := m.tokens.VerifyAccessToken(token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, claims.UserID))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func GetUserID(r *http.Request) string {
	if v := r.Context().Value(userIDKey); v != nil {
		if userID, ok := v.(string); ok {
			return userID
		}
	}
	return ""
}
