package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"threads/internal/posts"
)

type PostHandler struct {
	posts *posts.Service
}

func NewPostHandler(postService *posts.Service) *PostHandler {
	return &PostHandler{posts: postService}
}

// POST /api/posts
type CreatePostRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	post, err := h.posts.Create(r.Context(), GetUserID(r), req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// GET /api/posts?lastPostId=&limit=
func (h *PostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			badRequest(w, "Invalid limit value")
			return
		}
		limit = parsed
	}

	page, err := h.posts.Feed(r.Context(), GetUserID(r), strings.TrimSpace(r.URL.Query().Get("lastPostId")), limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GET /api/posts/{id}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), GetUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// DELETE /api/posts/{id}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.Delete(r.Context(), GetUserID(r), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// PATCH /api/posts/{id}/like
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	state, err := h.posts.ToggleLike(r.Context(), GetUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// PATCH /api/posts/{id}/comment
type AddCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req AddCommentRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	comments, err := h.posts.AddComment(r.Context(), GetUserID(r), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// DELETE /api/posts/{postId}/comment/{commentId}
func (h *PostHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	err := h.posts.DeleteComment(r.Context(), GetUserID(r), chi.URLParam(r, "postId"), chi.URLParam(r, "commentId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
