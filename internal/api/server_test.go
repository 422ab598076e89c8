package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"threads/internal/auth"
	"threads/internal/chat"
	"threads/internal/config"
	"threads/internal/constants"
	"threads/internal/db"
	"threads/internal/events"
	"threads/internal/models"
	"threads/internal/posts"
	"threads/internal/social"
	"threads/internal/ws"
)

const testPassword = "secret123"

type testEnv struct {
	server *httptest.Server
	hub    *ws.Hub
	// clockOffset shifts the token clock; tests advance it to expire access tokens.
	clockOffset atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	users := db.NewUserRepository(database)
	conversations := db.NewConversationRepository(database)
	messages := db.NewMessageRepository(database)

	env := &testEnv{}
	tokens, err := auth.NewTokenService(strings.Repeat("a", 32), strings.Repeat("b", 32), time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	tokens.SetClock(func() time.Time {
		return time.Now().Add(time.Duration(env.clockOffset.Load()))
	})

	bus := events.NewBus()
	hub := ws.NewHub(conversations, bus)
	bus.Subscribe(hub.HandleEvent)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	secure := false
	cfg := &config.Config{
		Server: config.ServerConfig{MaxBodyBytes: 1 << 20},
		Auth:   config.AuthConfig{CookieSecure: &secure},
		WebSocket: config.WebSocketConfig{
			SendBuffer: 16,
			JoinRate:   10,
			JoinBurst:  10,
		},
	}

	authenticator, err := auth.NewAuthenticator(users, tokens, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	srv, err := NewServer(
		cfg,
		database,
		authenticator,
		chat.NewService(database, conversations, messages, users, bus),
		social.NewService(users),
		posts.NewService(db.NewPostRepository(database)),
		users,
		hub,
	)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	env.server = httptest.NewServer(srv)
	env.hub = hub
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) advanceClock(d time.Duration) {
	e.clockOffset.Add(int64(d))
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding %s response: %v", resp.Request.URL.Path, err)
	}
	return out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		t.Fatalf("%s %s status = %d, want %d, body=%q", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body.String())
	}
}

func expectError(t *testing.T, resp *http.Response, wantStatus int, wantCode string) ErrorResponse {
	t.Helper()
	expectStatus(t, resp, wantStatus)
	body := decodeJSON[ErrorResponse](t, resp)
	if body.Error.Code != wantCode {
		t.Fatalf("%s %s error.code = %q, want %q", resp.Request.Method, resp.Request.URL.Path, body.Error.Code, wantCode)
	}
	return body
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == auth.RefreshCookieName {
			return c
		}
	}
	return nil
}

type testUser struct {
	ID     string
	Token  string
	Cookie *http.Cookie
}

func (e *testEnv) signupAndLogin(t *testing.T, username string) testUser {
	t.Helper()

	resp := e.request(t, http.MethodPost, "/api/auth/signup", "", SignupRequest{
		Name:     strings.ToUpper(username[:1]) + username[1:],
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	expectStatus(t, resp, http.StatusCreated)

	resp = e.request(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Identifier: username, Password: testPassword})
	expectStatus(t, resp, http.StatusOK)
	cookie := refreshCookie(resp)
	body := decodeJSON[AuthResponse](t, resp)

	return testUser{ID: body.User.ID, Token: body.AccessToken, Cookie: cookie}
}

func TestAuthLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/auth/signup", "", SignupRequest{
		Name:     "Alice",
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: testPassword,
	})
	expectStatus(t, resp, http.StatusCreated)
	created := decodeJSON[models.User](t, resp)
	if created.ID == "" || created.Email != "alice@example.com" {
		t.Fatalf("signup user = %+v, want id and lower-cased email", created)
	}

	resp = env.request(t, http.MethodPost, "/api/auth/signup", "", SignupRequest{
		Name:     "Alice Again",
		Username: "alice",
		Email:    "other@example.com",
		Password: testPassword,
	})
	expectError(t, resp, http.StatusConflict, constants.ErrCodeConflict)

	wrongPassword := expectError(t,
		env.request(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Identifier: "alice", Password: "wrong-password"}),
		http.StatusUnauthorized, constants.ErrCodeInvalidCredentials)
	unknownUser := expectError(t,
		env.request(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Identifier: "nobody", Password: testPassword}),
		http.StatusUnauthorized, constants.ErrCodeInvalidCredentials)
	if wrongPassword != unknownUser {
		t.Fatalf("login errors differ: %+v vs %+v", wrongPassword, unknownUser)
	}

	resp = env.request(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Identifier: "alice@example.com", Password: testPassword})
	expectStatus(t, resp, http.StatusOK)
	cookie := refreshCookie(resp)
	if cookie == nil {
		t.Fatal("login did not set the refresh cookie")
	}
	if !cookie.HttpOnly || cookie.Path != auth.RefreshCookiePath || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("refresh cookie = %+v, want HttpOnly, path %q, SameSite=Strict", cookie, auth.RefreshCookiePath)
	}
	login := decodeJSON[AuthResponse](t, resp)
	if login.AccessToken == "" || login.User == nil || login.User.ID != created.ID {
		t.Fatalf("login response = %+v", login)
	}
	if strings.Contains(login.AccessToken, cookie.Value) {
		t.Fatal("access token must not carry the refresh token")
	}

	resp = env.request(t, http.MethodGet, "/api/users/me", login.AccessToken, nil)
	expectStatus(t, resp, http.StatusOK)

	expectError(t, env.request(t, http.MethodPost, "/api/auth/refresh", "", nil), http.StatusUnauthorized, constants.ErrCodeAuthFailed)

	resp = env.request(t, http.MethodPost, "/api/auth/refresh", "", nil, cookie)
	expectStatus(t, resp, http.StatusOK)
	refreshed := decodeJSON[RefreshResponse](t, resp)
	if refreshed.AccessToken == "" {
		t.Fatal("refresh returned no access token")
	}

	resp = env.request(t, http.MethodPost, "/api/auth/logout", refreshed.AccessToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if cleared := refreshCookie(resp); cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("logout cookie = %+v, want cleared", cleared)
	}

	expectError(t, env.request(t, http.MethodPost, "/api/auth/refresh", "", nil, cookie), http.StatusUnauthorized, constants.ErrCodeAuthFailed)
}

func TestLogoutWithoutBearerClearsCookie(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")

	resp := env.request(t, http.MethodPost, "/api/auth/logout", "", nil, alice.Cookie)
	expectStatus(t, resp, http.StatusOK)
	if cleared := refreshCookie(resp); cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("logout cookie = %+v, want cleared", cleared)
	}
}

func TestExpiredAccessTokenReportsAuthExpired(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")

	env.advanceClock(2 * time.Minute)

	expectError(t, env.request(t, http.MethodGet, "/api/chat/sidebar", alice.Token, nil), http.StatusUnauthorized, constants.ErrCodeAuthExpired)
	expectError(t, env.request(t, http.MethodGet, "/api/chat/sidebar", "garbage", nil), http.StatusUnauthorized, constants.ErrCodeAuthFailed)
	expectError(t, env.request(t, http.MethodGet, "/api/chat/sidebar", "", nil), http.StatusUnauthorized, constants.ErrCodeAuthFailed)

	resp := env.request(t, http.MethodPost, "/api/auth/refresh", "", nil, alice.Cookie)
	expectStatus(t, resp, http.StatusOK)
	refreshed := decodeJSON[RefreshResponse](t, resp)

	expectStatus(t, env.request(t, http.MethodGet, "/api/chat/sidebar", refreshed.AccessToken, nil), http.StatusOK)
}

func TestFollowGraphAndSidebar(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")
	bobby := env.signupAndLogin(t, "bobby")

	resp := env.request(t, http.MethodPatch, "/api/users/"+bobby.ID+"/follow", alice.Token, nil)
	expectStatus(t, resp, http.StatusOK)
	followed := decodeJSON[models.User](t, resp)
	if followed.FollowersCount != 1 || followed.Email != "" {
		t.Fatalf("followed user = %+v, want 1 follower and hidden email", followed)
	}

	expectError(t, env.request(t, http.MethodPatch, "/api/users/"+bobby.ID+"/follow", alice.Token, nil), http.StatusConflict, constants.ErrCodeConflict)
	expectError(t, env.request(t, http.MethodPatch, "/api/users/"+alice.ID+"/follow", alice.Token, nil), http.StatusBadRequest, constants.ErrCodeInvalidRequest)
	expectError(t, env.request(t, http.MethodPatch, "/api/users/usr_missing/follow", alice.Token, nil), http.StatusNotFound, constants.ErrCodeNotFound)

	sidebar := decodeJSON[chat.Sidebar](t, env.request(t, http.MethodGet, "/api/chat/sidebar", alice.Token, nil))
	if len(sidebar.FriendsToChatWith) != 0 {
		t.Fatalf("friendsToChatWith = %+v, want none before follow-back", sidebar.FriendsToChatWith)
	}

	expectStatus(t, env.request(t, http.MethodPatch, "/api/users/"+alice.ID+"/follow", bobby.Token, nil), http.StatusOK)

	sidebar = decodeJSON[chat.Sidebar](t, env.request(t, http.MethodGet, "/api/chat/sidebar", alice.Token, nil))
	if len(sidebar.FriendsToChatWith) != 1 || sidebar.FriendsToChatWith[0].ID != bobby.ID {
		t.Fatalf("friendsToChatWith = %+v, want bobby", sidebar.FriendsToChatWith)
	}

	resp = env.request(t, http.MethodPost, "/api/chat", alice.Token, AccessChatRequest{UserID: bobby.ID})
	expectStatus(t, resp, http.StatusOK)
	conv := decodeJSON[models.Conversation](t, resp)

	resp = env.request(t, http.MethodPost, "/api/chat", bobby.Token, AccessChatRequest{UserID: alice.ID})
	expectStatus(t, resp, http.StatusOK)
	if again := decodeJSON[models.Conversation](t, resp); again.ID != conv.ID {
		t.Fatalf("second access returned %q, want %q", again.ID, conv.ID)
	}

	sidebar = decodeJSON[chat.Sidebar](t, env.request(t, http.MethodGet, "/api/chat/sidebar", alice.Token, nil))
	if len(sidebar.Chats) != 1 || len(sidebar.FriendsToChatWith) != 0 {
		t.Fatalf("sidebar = %+v, want one chat and no friends left", sidebar)
	}

	profile := decodeJSON[UserResponse](t, env.request(t, http.MethodGet, "/api/users/"+bobby.ID, alice.Token, nil))
	if !profile.IsFollowing || profile.User.Email != "" {
		t.Fatalf("profile = %+v, want isFollowing and hidden email", profile)
	}

	expectStatus(t, env.request(t, http.MethodPatch, "/api/users/"+bobby.ID+"/unfollow", alice.Token, nil), http.StatusOK)
	expectError(t, env.request(t, http.MethodPatch, "/api/users/"+bobby.ID+"/unfollow", alice.Token, nil), http.StatusBadRequest, constants.ErrCodeInvalidRequest)
}

func TestMessagesRequireParticipation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")
	bobby := env.signupAndLogin(t, "bobby")
	carol := env.signupAndLogin(t, "carol")

	conv := decodeJSON[models.Conversation](t, env.request(t, http.MethodPost, "/api/chat", alice.Token, AccessChatRequest{UserID: bobby.ID}))

	for _, content := range []string{"first", "second", "third"} {
		expectStatus(t, env.request(t, http.MethodPost, "/api/message", alice.Token, SendMessageRequest{ChatID: conv.ID, Content: content}), http.StatusCreated)
	}

	expectError(t, env.request(t, http.MethodPost, "/api/message", carol.Token, SendMessageRequest{ChatID: conv.ID, Content: "hi"}), http.StatusForbidden, constants.ErrCodeForbidden)
	expectError(t, env.request(t, http.MethodGet, "/api/message/"+conv.ID, carol.Token, nil), http.StatusForbidden, constants.ErrCodeForbidden)
	expectError(t, env.request(t, http.MethodPost, "/api/message", alice.Token, SendMessageRequest{ChatID: conv.ID, Content: "   "}), http.StatusBadRequest, constants.ErrCodeInvalidRequest)
	expectError(t, env.request(t, http.MethodPost, "/api/message", alice.Token, SendMessageRequest{ChatID: conv.ID, Content: strings.Repeat("x", constants.MaxMessageContentLength+1)}), http.StatusBadRequest, constants.ErrCodeMessageTooLong)
	expectError(t, env.request(t, http.MethodPost, "/api/message", alice.Token, map[string]string{"chatId": conv.ID, "content": "x", "extra": "y"}), http.StatusBadRequest, constants.ErrCodeInvalidRequest)

	history := decodeJSON[[]models.Message](t, env.request(t, http.MethodGet, "/api/message/"+conv.ID, bobby.Token, nil))
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i, want := range []string{"first", "second", "third"} {
		if history[i].Content != want {
			t.Fatalf("history[%d] = %q, want %q", i, history[i].Content, want)
		}
		if history[i].Sender.ID != alice.ID {
			t.Fatalf("history[%d] sender = %q, want %q", i, history[i].Sender.ID, alice.ID)
		}
	}

	page := decodeJSON[[]models.Message](t, env.request(t, http.MethodGet, "/api/message/"+conv.ID+"?limit=1&before="+history[2].ID, bobby.Token, nil))
	if len(page) != 1 || page[0].ID != history[1].ID {
		t.Fatalf("page = %+v, want only the second message", page)
	}

	sidebar := decodeJSON[chat.Sidebar](t, env.request(t, http.MethodGet, "/api/chat/sidebar", bobby.Token, nil))
	if len(sidebar.Chats) != 1 || sidebar.Chats[0].LatestMessage == nil || sidebar.Chats[0].LatestMessage.Content != "third" {
		t.Fatalf("sidebar chats = %+v, want latest message third", sidebar.Chats)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
	health := decodeJSON[map[string]any](t, resp)
	if health["status"] != "ok" {
		t.Fatalf("health = %+v, want status ok", health)
	}

	resp = env.request(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, resp, http.StatusOK)
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	if !strings.Contains(body.String(), "http_requests_total") {
		t.Fatal("metrics output missing http_requests_total")
	}
}
