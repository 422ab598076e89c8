package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"threads/internal/apperr"
	"threads/internal/db"
	"threads/internal/models"
)

// UserStore is the credential store the Authenticator needs.
type UserStore interface {
	Create(ctx context.Context, p db.CreateUserParams) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	IncrementSessionVersion(ctx context.Context, id string) error
}

type SignupInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

// Session is the result of a successful login or refresh. RefreshToken is nil
// after a refresh; the existing cookie stays in place.
type Session struct {
	User         *models.User
	AccessToken  *IssuedToken
	RefreshToken *IssuedToken
}

// Authenticator is the server half of the session protocol: it checks
// credentials against the store and mints tokens through the TokenService.
type Authenticator struct {
	users     UserStore
	tokens    *TokenService
	passwords *Passwords
	policy    *bluemonday.Policy
}

func NewAuthenticator(users UserStore, tokens *TokenService, bcryptCost int) (*Authenticator, error) {
	passwords, err := NewPasswords(bcryptCost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		policy:    bluemonday.StrictPolicy(),
	}, nil
}

func (a *Authenticator) Tokens() *TokenService {
	return a.tokens
}

func (a *Authenticator) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	name := strings.TrimSpace(a.policy.Sanitize(in.Name))
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || username == "" || email == "" || in.Password == "" {
		return nil, apperr.Validation("name, username, email and password are required")
	}

	exists, err := a.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}
	if exists {
		return nil, apperr.Conflict("User already exists")
	}

	hash, err := a.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user, err := a.users.Create(ctx, db.CreateUserParams{
		Name:         name,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.Conflict("User already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	slog.Info("user signed up", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login never tells the caller whether the identifier or the password was wrong.
func (a *Authenticator) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperr.Validation("identifier and password are required")
	}

	user, err := a.users.FindByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("finding user: %w", err)
	}

	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	ok, err := a.passwords.Check(hash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrInvalidCredentials
	}

	access, err := a.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}
	refresh, err := a.tokens.IssueRefreshToken(user.ID, user.SessionVersion)
	if err != nil {
		return nil, err
	}

	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh mints a new access token from a valid refresh token. Tokens issued
// before the user's last logout are rejected.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := a.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := a.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if user.SessionVersion != claims.SessionVersion {
		return nil, apperr.ErrTokenInvalid
	}

	access, err := a.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &Session{User: user, AccessToken: access}, nil
}

func (a *Authenticator) Logout(ctx context.Context, userID string) error {
	err := a.users.IncrementSessionVersion(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return nil
}
