// Package social implements the follow graph and user profiles.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"threads/internal/apperr"
	"threads/internal/constants"
	"threads/internal/db"
	"threads/internal/models"
)

const (
	maxNameLength = 64
	maxBioLength  = 280
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Search(ctx context.Context, query, excludeID string, limit int) ([]*models.User, error)
	UpdateProfile(ctx context.Context, id string, p db.UpdateProfileParams) error
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
}

type Service struct {
	users  UserStore
	policy *bluemonday.Policy
}

func NewService(users UserStore) *Service {
	return &Service{users: users, policy: bluemonday.StrictPolicy()}
}

type Profile struct {
	*models.User
	IsFollowing bool `json:"isFollowing"`
}

func (s *Service) findUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return u, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.findUser(ctx, userID)
}

// Profile returns the public view of userID. Email is only shown to its owner.
func (s *Service) Profile(ctx context.Context, viewerID, userID string) (*Profile, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Profile{User: u}
	if viewerID != userID {
		u.Email = ""
		p.IsFollowing, err = s.users.IsFollowing(ctx, viewerID, userID)
		if err != nil {
			return nil, fmt.Errorf("checking follow: %w", err)
		}
	}
	return p, nil
}

func (s *Service) Search(ctx context.Context, viewerID, query string, limit int) ([]models.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.UserSummary{}, nil
	}
	if limit <= 0 || limit > constants.UserSearchMaxLimit {
		limit = constants.UserSearchMaxLimit
	}

	users, err := s.users.Search(ctx, query, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}

	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

type ProfileUpdate struct {
	Name *string
	Bio  *string
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.User, error) {
	var params db.UpdateProfileParams

	if in.Name != nil {
		name := strings.TrimSpace(s.policy.Sanitize(*in.Name))
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return nil, apperr.Validation(fmt.Sprintf("name must be 1-%d characters", maxNameLength))
		}
		params.Name = &name
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(s.policy.Sanitize(*in.Bio))
		if utf8.RuneCountInString(bio) > maxBioLength {
			return nil, apperr.Validation(fmt.Sprintf("bio must be at most %d characters", maxBioLength))
		}
		params.Bio = &bio
	}

	err := s.users.UpdateProfile(ctx, userID, params)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return s.findUser(ctx, userID)
}

// Follow adds followerID to targetID's followers exactly once.
func (s *Service) Follow(ctx context.Context, followerID, targetID string) (*models.User, error) {
	if followerID == targetID {
		return nil, apperr.Validation("You cannot follow yourself")
	}
	if _, err := s.findUser(ctx, targetID); err != nil {
		return nil, err
	}

	err := s.users.Follow(ctx, followerID, targetID)
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.Conflict("You are already following this user")
	}
	if err != nil {
		return nil, fmt.Errorf("following user: %w", err)
	}
	return s.findUser(ctx, targetID)
}

func (s *Service) Unfollow(ctx context.Context, followerID, targetID string) (*models.User, error) {
	if followerID == targetID {
		return nil, apperr.Validation("You cannot unfollow yourself")
	}
	if _, err := s.findUser(ctx, targetID); err != nil {
		return nil, err
	}

	err := s.users.Unfollow(ctx, followerID, targetID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Validation("You are not following this user")
	}
	if err != nil {
		return nil, fmt.Errorf("unfollowing user: %w", err)
	}
	return s.findUser(ctx, targetID)
}
