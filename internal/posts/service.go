// Package posts implements text posts with likes, comments and a global feed.
package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"threads/internal/apperr"
	"threads/internal/constants"
	"threads/internal/db"
	"threads/internal/metrics"
	"threads/internal/models"
)

type PostStore interface {
	Create(ctx context.Context, authorID, content string) (string, error)
	FindByID(ctx context.Context, id, viewerID string) (*models.Post, error)
	Feed(ctx context.Context, viewerID, beforeID string, limit int) ([]*models.Post, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, postID, userID string) (bool, int, error)
	AddComment(ctx context.Context, postID, authorID, content string) (string, error)
	ListComments(ctx context.Context, postID string) ([]*models.Comment, error)
	FindComment(ctx context.Context, postID, commentID string) (*models.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
}

type Service struct {
	posts  PostStore
	policy *bluemonday.Policy
}

func NewService(posts PostStore) *Service {
	return &Service{posts: posts, policy: bluemonday.StrictPolicy()}
}

func (s *Service) clean(content string, maxLen int, field string) (string, error) {
	content = strings.TrimSpace(s.policy.Sanitize(content))
	if content == "" {
		return "", apperr.Validation(field + " is required")
	}
	if utf8.RuneCountInString(content) > maxLen {
		return "", apperr.Validation(fmt.Sprintf("%s exceeds %d characters", field, maxLen))
	}
	return content, nil
}

func (s *Service) findPost(ctx context.Context, id, viewerID string) (*models.Post, error) {
	if !db.IsValidID("pst", id) {
		return nil, apperr.Validation("Invalid post ID")
	}
	p, err := s.posts.FindByID(ctx, id, viewerID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Post not found")
	}
	if err != nil {
		return nil, fmt.Errorf("finding post: %w", err)
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, authorID, content string) (*models.Post, error) {
	content, err := s.clean(content, constants.MaxPostContentLength, "content")
	if err != nil {
		return nil, err
	}

	id, err := s.posts.Create(ctx, authorID, content)
	if errors.Is(err, db.ErrBusy) {
		return nil, apperr.Upstream("Post store is busy, try again", err)
	}
	if err != nil {
		return nil, err
	}
	metrics.PostsCreated.Inc()
	return s.findPost(ctx, id, authorID)
}

// Get returns the post with its comments.
func (s *Service) Get(ctx context.Context, viewerID, id string) (*models.Post, error) {
	p, err := s.findPost(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	p.Comments, err = s.posts.ListComments(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a post. Only its author may do so.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	p, err := s.findPost(ctx, id, userID)
	if err != nil {
		return err
	}
	if p.Author.ID != userID {
		return apperr.Forbidden("You can only delete your own posts")
	}
	if err := s.posts.Delete(ctx, p.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	slog.Info("post deleted", "component", "posts", "post_id", p.ID, "user_id", userID)
	return nil
}

type LikeState struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likesCount"`
}

// ToggleLike likes the post if userID has not, and unlikes it otherwise.
func (s *Service) ToggleLike(ctx context.Context, userID, id string) (*LikeState, error) {
	p, err := s.findPost(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	liked, count, err := s.posts.ToggleLike(ctx, p.ID, userID)
	if err != nil {
		return nil, err
	}
	return &LikeState{Liked: liked, LikeCount: count}, nil
}

// AddComment appends a comment and returns all comments on the post.
func (s *Service) AddComment(ctx context.Context, userID, postID, content string) ([]*models.Comment, error) {
	content, err := s.clean(content, constants.MaxCommentContentLength, "comment")
	if err != nil {
		return nil, err
	}
	p, err := s.findPost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.posts.AddComment(ctx, p.ID, userID, content); err != nil {
		return nil, err
	}
	return s.posts.ListComments(ctx, p.ID)
}

// DeleteComment removes a comment. Only the comment's author may do so.
func (s *Service) DeleteComment(ctx context.Context, userID, postID, commentID string) error {
	if !db.IsValidID("cmt", commentID) {
		return apperr.Validation("Invalid comment ID")
	}
	p, err := s.findPost(ctx, postID, userID)
	if err != nil {
		return err
	}
	c, err := s.posts.FindComment(ctx, p.ID, commentID)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("Comment not found")
	}
	if err != nil {
		return fmt.Errorf("finding comment: %w", err)
	}
	if c.Author.ID != userID {
		return apperr.Forbidden("You can only delete your own comments")
	}
	if err := s.posts.DeleteComment(ctx, c.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	return nil
}

type FeedPage struct {
	Posts       []*models.Post `json:"posts"`
	TotalPosts  int            `json:"totalPosts"`
	HasNextPage bool           `json:"hasNextPage"`
	NextCursor  *string        `json:"nextCursor"`
}

// Feed pages through all posts newest first. viewerID may be empty for
// anonymous readers, in which case no post is marked liked.
func (s *Service) Feed(ctx context.Context, viewerID, beforeID string, limit int) (*FeedPage, error) {
	if limit <= 0 {
		limit = constants.FeedDefaultLimit
	}
	if limit > constants.FeedMaxLimit {
		return nil, apperr.Validation(fmt.Sprintf("limit must be between 1 and %d", constants.FeedMaxLimit))
	}
	if beforeID != "" && !db.IsValidID("pst", beforeID) {
		return nil, apperr.Validation("Invalid cursor")
	}

	posts, err := s.posts.Feed(ctx, viewerID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.posts.Count(ctx)
	if err != nil {
		return nil, err
	}

	page := &FeedPage{Posts: posts, TotalPosts: total, HasNextPage: len(posts) == limit}
	if len(posts) > 0 {
		next := posts[len(posts)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}
