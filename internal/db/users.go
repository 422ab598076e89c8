package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"threads/internal/models"
)

const userColumns = `u.id, u.name, u.username, u.email, u.password_hash, u.bio, u.avatar_url, u.session_version, u.created_at, u.updated_at,
	(SELECT COUNT(*) FROM follows f WHERE f.followee_id = u.id),
	(SELECT COUNT(*) FROM follows f WHERE f.follower_id = u.id)`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

type CreateUserParams struct {
	Name         string
	Username     string
	Email        string
	PasswordHash string
}

func (r *UserRepository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	id, err := GenerateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO users (id, name, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.Name, p.Username, p.Email, p.PasswordHash, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return &models.User{
		ID:             id,
		Name:           p.Name,
		Username:       p.Username,
		Email:          p.Email,
		PasswordHash:   p.PasswordHash,
		SessionVersion: 1,
		CreatedAt:      now,
	}, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id)
}

// FindByIdentifier looks a user up by username or by (case-insensitive) email.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.username = ? OR u.email = ? LIMIT 1`,
		identifier, strings.ToLower(identifier),
	)
}

func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`,
		username, email,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}
	return count > 0, nil
}

// Search returns users whose username or name starts with query, excluding excludeID.
func (r *UserRepository) Search(ctx context.Context, query, excludeID string, limit int) ([]*models.User, error) {
	pattern := escapeLike(query) + "%"
	return r.findMany(ctx,
		`SELECT `+userColumns+` FROM users u
		WHERE u.id <> ? AND (u.username LIKE ? ESCAPE '\' OR u.name LIKE ? ESCAPE '\')
		ORDER BY u.username LIMIT ?`,
		excludeID, pattern, pattern, limit,
	)
}

type UpdateProfileParams struct {
	Name *string
	Bio  *string
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, p UpdateProfileParams) error {
	result, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE users SET name = COALESCE(?, name), bio = COALESCE(?, bio), updated_at = ? WHERE id = ?`,
		p.Name, p.Bio, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return checkRowsAffected(result)
}

// IncrementSessionVersion invalidates every refresh token issued to the user so far.
func (r *UserRepository) IncrementSessionVersion(ctx context.Context, id string) error {
	result, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE users SET session_version = session_version + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("incrementing session version: %w", err)
	}
	return checkRowsAffected(result)
}

// Follow records followerID -> followeeID. A single row is the edge, so the
// follower's following set and the followee's followers set change together.
func (r *UserRepository) Follow(ctx context.Context, followerID, followeeID string) error {
	_, err := r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`,
		followerID, followeeID, time.Now().UTC(),
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating follow: %w", err)
	}
	return nil
}

func (r *UserRepository) Unfollow(ctx context.Context, followerID, followeeID string) error {
	result, err := r.db.conn(ctx).ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("deleting follow: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var count int
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking follow: %w", err)
	}
	return count > 0, nil
}

// FollowerIDs returns the ids of users following userID.
func (r *UserRepository) FollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return r.ids(ctx, `SELECT follower_id FROM follows WHERE followee_id = ? ORDER BY created_at`, userID)
}

// FollowingIDs returns the ids of users userID follows.
func (r *UserRepository) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	return r.ids(ctx, `SELECT followee_id FROM follows WHERE follower_id = ? ORDER BY created_at`, userID)
}

// MutualFollows returns users that userID follows and that follow userID back.
func (r *UserRepository) MutualFollows(ctx context.Context, userID string) ([]*models.User, error) {
	return r.findMany(ctx,
		`SELECT `+userColumns+` FROM users u
		JOIN follows fo ON fo.follower_id = ? AND fo.followee_id = u.id
		JOIN follows fb ON fb.follower_id = u.id AND fb.followee_id = ?
		ORDER BY u.username`,
		userID, userID,
	)
}

func (r *UserRepository) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying follow ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning follow id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*models.User, error) {
	var u models.User
	var updatedAt sql.NullTime

	err := s.Scan(
		&u.ID,
		&u.Name,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Bio,
		&u.AvatarURL,
		&u.SessionVersion,
		&u.CreatedAt,
		&updatedAt,
		&u.FollowersCount,
		&u.FollowingCount,
	)
	if err != nil {
		return nil, err
	}

	u.UpdatedAt = nullTimeToPtr(updatedAt)
	return &u, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.conn(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) findMany(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
