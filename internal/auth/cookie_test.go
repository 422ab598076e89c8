package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRefreshCookieAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	RefreshCookie{Secure: true}.Set(rec, "tok", time.Now().Add(time.Hour))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("len(cookies) = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != RefreshCookieName || c.Value != "tok" {
		t.Fatalf("cookie = %s=%s, want %s=tok", c.Name, c.Value, RefreshCookieName)
	}
	if !c.HttpOnly || !c.Secure {
		t.Fatalf("HttpOnly = %v, Secure = %v, want both true", c.HttpOnly, c.Secure)
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("SameSite = %v, want %v", c.SameSite, http.SameSiteStrictMode)
	}
	if c.Path != RefreshCookiePath {
		t.Fatalf("Path = %q, want %q", c.Path, RefreshCookiePath)
	}
}

func TestRefreshCookieClearAndRead(t *testing.T) {
	rec := httptest.NewRecorder()
	RefreshCookie{}.Clear(rec)
	c := rec.Result().Cookies()[0]
	if c.MaxAge >= 0 || c.Value != "" {
		t.Fatalf("cleared cookie MaxAge = %d, Value = %q", c.MaxAge, c.Value)
	}

	req := httptest.NewRequest(http.MethodPost, RefreshCookiePath, nil)
	if _, err := (RefreshCookie{}).Read(req); !errors.Is(err, ErrNoRefreshCookie) {
		t.Fatalf("Read() error = %v, want %v", err, ErrNoRefreshCookie)
	}

	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "tok"})
	got, err := RefreshCookie{}.Read(req)
	if err != nil || got != "tok" {
		t.Fatalf("Read() = %q, %v, want tok, nil", got, err)
	}
}
