package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"threads/internal/apperr"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the payload of both token classes. Access tokens carry only the
// user id and the registered claims; refresh tokens add the session version.
type Claims struct {
	UserID         string    `json:"userId"`
	Type           TokenType `json:"typ"`
	SessionVersion int       `json:"sv,omitempty"`
	jwt.RegisteredClaims
}

type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenService signs and verifies access and refresh tokens with separate
// secrets, so one class can never be forged with the other's key.
type TokenService struct {
	accessSecret    []byte
	refreshSecret   []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if accessTTL <= 0 || accessTTL >= refreshTTL {
		return nil, fmt.Errorf("access token TTL %s must be positive and shorter than refresh token TTL %s", accessTTL, refreshTTL)
	}

	return &TokenService{
		accessSecret:    []byte(accessSecret),
		refreshSecret:   []byte(refreshSecret),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		now:             time.Now,
	}, nil
}

// SetClock replaces the time source used for issuing and verifying tokens.
func (s *TokenService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *TokenService) RefreshTokenTTL() time.Duration {
	return s.refreshTokenTTL
}

func (s *TokenService) IssueAccessToken(userID string) (*IssuedToken, error) {
	return s.issue(Claims{UserID: userID, Type: TokenTypeAccess}, s.accessSecret, s.accessTokenTTL)
}

func (s *TokenService) IssueRefreshToken(userID string, sessionVersion int) (*IssuedToken, error) {
	return s.issue(Claims{UserID: userID, Type: TokenTypeRefresh, SessionVersion: sessionVersion}, s.refreshSecret, s.refreshTokenTTL)
}

func (s *TokenService) issue(claims Claims, secret []byte, ttl time.Duration) (*IssuedToken, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	id := uuid.NewString()

	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        id,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return nil, fmt.Errorf("signing %s token: %w", claims.Type, err)
	}

	return &IssuedToken{Token: signed, ID: id, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *TokenService) VerifyAccessToken(tokenString string) (*Claims, error) {
	return s.verify(tokenString, s.accessSecret, TokenTypeAccess)
}

func (s *TokenService) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return s.verify(tokenString, s.refreshSecret, TokenTypeRefresh)
}

// verify returns apperr.ErrTokenExpired once now >= exp and apperr.ErrTokenInvalid
// for every other failure. Parser detail is never surfaced to callers.
func (s *TokenService) verify(tokenString string, secret []byte, want TokenType) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ErrTokenExpired
		}
		return nil, apperr.ErrTokenInvalid
	}
	if !token.Valid || claims.Type != want || claims.UserID == "" {
		return nil, apperr.ErrTokenInvalid
	}

	return claims, nil
}
