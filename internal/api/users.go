package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"threads/internal/models"
	"threads/internal/social"
	"threads/internal/ws"
)

type UserHandler struct {
	social *social.Service
	hub    *ws.Hub
}

func NewUserHandler(socialService *social.Service, hub *ws.Hub) *UserHandler {
	return &UserHandler{social: socialService, hub: hub}
}

type UserResponse struct {
	*social.Profile
	Online bool `json:"online"`
}

// GET /api/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.social.Me(r.Context(), GetUserID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GET /api/users/{id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	profile, err := h.social.Profile(r.Context(), GetUserID(r), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	resp := UserResponse{Profile: profile}
	if h.hub != nil {
		resp.Online = h.hub.IsUserOnline(userID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/users/search?q=&limit=
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequest(w, "Query parameter 'limit' must be a positive integer")
			return
		}
		limit = parsed
	}

	users, err := h.social.Search(r.Context(), GetUserID(r), query, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// PATCH /api/users/profile
type UpdateProfileRequest struct {
	Name *string `json:"name" validate:"omitempty,max=64"`
	Bio  *string `json:"bio" validate:"omitempty,max=280"`
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Name == nil && req.Bio == nil {
		badRequest(w, "name or bio is required")
		return
	}

	user, err := h.social.UpdateProfile(r.Context(), GetUserID(r), social.ProfileUpdate{
		Name: req.Name,
		Bio:  req.Bio,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// PATCH /api/users/{id}/follow
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	target, err := h.social.Follow(r.Context(), GetUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicUser(target))
}

// PATCH /api/users/{id}/unfollow
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	target, err := h.social.Unfollow(r.Context(), GetUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicUser(target))
}

// publicUser strips fields only the account owner may see.
func publicUser(u *models.User) *models.User {
	out := *u
	out.Email = ""
	return &out
}
