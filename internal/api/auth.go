package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"threads/internal/apperr"
	"threads/internal/auth"
	"threads/internal/constants"
	"threads/internal/metrics"
	"threads/internal/models"
)

type AuthHandler struct {
	authenticator *auth.Authenticator
	cookie        auth.RefreshCookie
}

func NewAuthHandler(authenticator *auth.Authenticator, cookie auth.RefreshCookie) *AuthHandler {
	return &AuthHandler{
		authenticator: authenticator,
		cookie:        cookie,
	}
}

// POST /api/auth/signup
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Username string `json:"username" validate:"required,min=4,max=32,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.authenticator.Signup(r.Context(), auth.SignupInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	metrics.RecordAuth("signup", err)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	slog.Info("user signed up", "component", "auth", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// POST /api/auth/login
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=72"`
}

type AuthResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	session, err := h.authenticator.Login(r.Context(), req.Identifier, req.Password)
	metrics.RecordAuth("login", err)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	h.cookie.Set(w, session.RefreshToken.Token, session.RefreshToken.ExpiresAt)
	writeJSON(w, http.StatusOK, AuthResponse{
		User:        session.User,
		AccessToken: session.AccessToken.Token,
		ExpiresAt:   session.AccessToken.ExpiresAt,
	})
}

// POST /api/auth/refresh
type RefreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookie.Read(r)
	if err != nil {
		metrics.RecordAuth("refresh", err)
		unauthorized(w, constants.ErrCodeAuthFailed, "Refresh token required")
		return
	}

	session, err := h.authenticator.Refresh(r.Context(), token)
	metrics.RecordAuth("refresh", err)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindAuth {
			h.cookie.Clear(w)
		}
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		AccessToken: session.AccessToken.Token,
		ExpiresAt:   session.AccessToken.ExpiresAt,
	})
}

// POST /api/auth/logout
//
// The cookie is cleared unconditionally. With a valid access token the
// user's session version is bumped too, which invalidates every refresh
// token issued so far.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.Clear(w)

	userID := GetUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
		return
	}

	err := h.authenticator.Logout(r.Context(), userID)
	if errors.Is(err, apperr.ErrTokenInvalid) {
		err = nil
	}
	metrics.RecordAuth("logout", err)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	slog.Info("user logged out", "component", "auth", "user_id", userID)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
