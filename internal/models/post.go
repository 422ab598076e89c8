package models

import "time"

type Post struct {
	ID           string      `json:"id"`
	Author       UserSummary `json:"user"`
	Content      string      `json:"content"`
	LikeCount    int         `json:"likeCount"`
	CommentCount int         `json:"commentCount"`
	// Liked is relative to the viewer the post was loaded for.
	Liked     bool       `json:"isLiked"`
	Comments  []*Comment `json:"comments,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Comment struct {
	ID        string      `json:"id"`
	PostID    string      `json:"postId"`
	Author    UserSummary `json:"user"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}
