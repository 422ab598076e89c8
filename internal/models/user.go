package models

import "time"

type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	PasswordHash   string     `json:"-"`
	Bio            string     `json:"bio"`
	AvatarURL      *string    `json:"avatarUrl,omitempty"`
	FollowersCount int        `json:"followersCount"`
	FollowingCount int        `json:"followingCount"`
	SessionVersion int        `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

func (u *User) GetAvatarURL() string {
	if u.AvatarURL != nil {
		return *u.AvatarURL
	}
	return ""
}

// Summary returns the public projection embedded in conversations and messages.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		AvatarURL: u.GetAvatarURL(),
	}
}

type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
