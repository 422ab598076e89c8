// Package client is a Go client for the threads API. Its Transport attaches
// the in-memory access token to every request and refreshes it once on 401.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"threads/internal/session"
)

// ErrSessionExpired is returned when a refresh fails; the session has been cleared.
var ErrSessionExpired = errors.New("session expired")

// Refresher exchanges the refresh cookie for a new access token.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// Transport is the request interceptor. It is the only writer of the
// session's access token after login.
type Transport struct {
	Base      http.RoundTripper
	Session   *session.Session
	Refresher Refresher
	// OnExpired runs once per failed refresh, after the session moved to Expired.
	OnExpired func()

	group singleflight.Group
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	token := t.Session.AccessToken()
	resp, err := t.base().RoundTrip(withToken(req, token, body))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, err
	}

	drain(resp)
	fresh, err := t.refresh(req.Context(), token)
	if err != nil {
		return nil, err
	}

	// One retry only. A second 401 goes back to the caller as is.
	return t.base().RoundTrip(withToken(req, fresh, body))
}

// AwaitRefresh blocks until a refresh in flight has finished and returns at
// once when none is running. It never starts a refresh of its own.
func (t *Transport) AwaitRefresh(ctx context.Context) {
	if t.Session.State() != session.StateRefreshing {
		return
	}
	_, _ = t.refresh(ctx, t.Session.AccessToken())
}

// refresh runs at most one refresh at a time; concurrent callers wait for
// and share its result. A caller whose token was already replaced gets the
// current token without a new refresh.
func (t *Transport) refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := t.group.Do("refresh", func() (any, error) {
		if current := t.Session.AccessToken(); current != "" && current != stale {
			return current, nil
		}
		if !t.Session.BeginRefresh() {
			return "", ErrSessionExpired
		}

		// Not cancellable once started: every waiter depends on it.
		token, expiresAt, err := t.Refresher.RefreshAccessToken(context.WithoutCancel(ctx))
		if err != nil {
			slog.Warn("access token refresh failed", "component", "client", "error", err)
			// A session reset meanwhile has already been cleaned up by its owner.
			if ferr := t.Session.FailRefresh(); ferr == nil && t.OnExpired != nil {
				t.OnExpired()
			}
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}

		if err := t.Session.CompleteRefresh(token, expiresAt); err != nil {
			slog.Debug("discarding refreshed token", "component", "client", "error", err)
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return body, nil
}

func withToken(req *http.Request, token string, body []byte) *http.Request {
	r := req.Clone(req.Context())
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
