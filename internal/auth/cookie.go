package auth

import (
	"errors"
	"net/http"
	"time"
)

const (
	RefreshCookieName = "threads_refresh"
	RefreshCookiePath = "/api/auth/refresh"
)

var ErrNoRefreshCookie = errors.New("refresh cookie not present")

// RefreshCookie writes the refresh token as an httpOnly, SameSite=Strict
// cookie that browsers only send to the refresh endpoint.
type RefreshCookie struct {
	Secure bool
	Domain string
}

func (c RefreshCookie) Set(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     RefreshCookiePath,
		Domain:   c.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c RefreshCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c RefreshCookie) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoRefreshCookie
	}
	return cookie.Value, nil
}
