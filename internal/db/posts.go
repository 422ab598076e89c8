package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"threads/internal/models"
)

type PostRepository struct {
	db *DB
}

func NewPostRepository(db *DB) *PostRepository {
	return &PostRepository{db: db}
}

// postColumns takes the viewer id as its only bind parameter.
const postColumns = `p.id, p.author_id, u.name, u.username, u.avatar_url, p.content, p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id),
	(SELECT COUNT(*) FROM post_comments c WHERE c.post_id = p.id),
	EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = ?)`

func (r *PostRepository) Create(ctx context.Context, authorID, content string) (string, error) {
	id, err := GenerateID("pst")
	if err != nil {
		return "", fmt.Errorf("generating post ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO posts (id, author_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, authorID, content, now, now,
	)
	if IsBusyError(err) {
		return "", fmt.Errorf("creating post: %w", ErrBusy)
	}
	if err != nil {
		return "", fmt.Errorf("creating post: %w", err)
	}
	return id, nil
}

// FindByID loads a post with its counters; Liked is set for viewerID.
func (r *PostRepository) FindByID(ctx context.Context, id, viewerID string) (*models.Post, error) {
	p, err := scanPost(r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts p LEFT JOIN users u ON u.id = p.author_id WHERE p.id = ?`,
		viewerID, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying post: %w", err)
	}
	return p, nil
}

// Feed returns up to limit posts newer-first, starting after beforeID when set.
func (r *PostRepository) Feed(ctx context.Context, viewerID, beforeID string, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p LEFT JOIN users u ON u.id = p.author_id`
	args := []any{viewerID}
	if beforeID != "" {
		query += ` WHERE p.rowid < (SELECT rowid FROM posts WHERE id = ?)`
		args = append(args, beforeID)
	}
	query += ` ORDER BY p.rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}
	defer rows.Close()

	posts := make([]*models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feed: %w", err)
	}
	return posts, nil
}

func (r *PostRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return n, nil
}

// Delete removes the post; likes and comments go with it.
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	return checkRowsAffected(result)
}

// ToggleLike flips userID's like on postID and returns the new state and count.
func (r *PostRepository) ToggleLike(ctx context.Context, postID, userID string) (liked bool, count int, err error) {
	err = r.db.InTx(ctx, func(ctx context.Context) error {
		q := r.db.conn(ctx)
		result, err := q.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID)
		if err != nil {
			return fmt.Errorf("removing like: %w", err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if removed == 0 {
			_, err = q.ExecContext(ctx,
				`INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)`,
				postID, userID, time.Now().UTC(),
			)
			if err != nil {
				return fmt.Errorf("adding like: %w", err)
			}
			liked = true
		}
		return q.QueryRowContext(ctx, `SELECT COUNT(*) FROM post_likes WHERE post_id = ?`, postID).Scan(&count)
	})
	return liked, count, err
}

func (r *PostRepository) AddComment(ctx context.Context, postID, authorID, content string) (string, error) {
	id, err := GenerateID("cmt")
	if err != nil {
		return "", fmt.Errorf("generating comment ID: %w", err)
	}

	_, err = r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO post_comments (id, post_id, author_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, postID, authorID, content, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("creating comment: %w", err)
	}
	return id, nil
}

const commentQuery = `SELECT c.id, c.post_id, c.author_id, u.name, u.username, u.avatar_url, c.content, c.created_at
	FROM post_comments c
	LEFT JOIN users u ON u.id = c.author_id`

// ListComments returns the post's comments oldest first.
func (r *PostRepository) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, commentQuery+` WHERE c.post_id = ? ORDER BY c.rowid`, postID)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	comments := make([]*models.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}
	return comments, nil
}

func (r *PostRepository) FindComment(ctx context.Context, postID, commentID string) (*models.Comment, error) {
	c, err := scanComment(r.db.conn(ctx).QueryRowContext(ctx,
		commentQuery+` WHERE c.post_id = ? AND c.id = ?`, postID, commentID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying comment: %w", err)
	}
	return c, nil
}

func (r *PostRepository) DeleteComment(ctx context.Context, commentID string) error {
	result, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM post_comments WHERE id = ?`, commentID)
	if err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	return checkRowsAffected(result)
}

func scanPost(s rowScanner) (*models.Post, error) {
	var p models.Post
	var name, username, avatar sql.NullString

	err := s.Scan(&p.ID, &p.Author.ID, &name, &username, &avatar, &p.Content, &p.CreatedAt, &p.UpdatedAt,
		&p.LikeCount, &p.CommentCount, &p.Liked)
	if err != nil {
		return nil, err
	}

	p.Author.Name = name.String
	p.Author.Username = username.String
	p.Author.AvatarURL = avatar.String
	return &p, nil
}

func scanComment(s rowScanner) (*models.Comment, error) {
	var c models.Comment
	var name, username, avatar sql.NullString

	err := s.Scan(&c.ID, &c.PostID, &c.Author.ID, &name, &username, &avatar, &c.Content, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Author.Name = name.String
	c.Author.Username = username.String
	c.Author.AvatarURL = avatar.String
	return &c, nil
}
