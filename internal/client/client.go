package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"threads/internal/models"
	"threads/internal/session"
)

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	baseURL   *url.URL
	api       *http.Client
	transport *Transport
	// raw shares the cookie jar but bypasses the interceptor; only auth
	// endpoints use it.
	raw     *http.Client
	session *session.Session

	Conversations *ConversationList
}

type Option func(*options)

type options struct {
	base     http.RoundTripper
	store    session.Store
	onChange func(from, to session.State)
	timeout  time.Duration
}

func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

func WithStateObserver(fn func(from, to session.State)) Option {
	return func(o *options) { o.onChange = fn }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	o := options{store: session.NewMemoryStore(), timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		baseURL:       u,
		session:       session.New(o.store, o.onChange),
		Conversations: NewConversationList(),
	}
	c.raw = &http.Client{Transport: o.base, Jar: jar, Timeout: o.timeout}
	c.transport = &Transport{
		Base:      o.base,
		Session:   c.session,
		Refresher: c,
		OnExpired: c.expire,
	}
	c.api = &http.Client{Transport: c.transport, Jar: jar, Timeout: o.timeout}
	return c, nil
}

func (c *Client) State() session.State {
	return c.session.State()
}

// AccessToken exposes the current token for the websocket dial.
func (c *Client) AccessToken() string {
	return c.session.AccessToken()
}

func (c *Client) url(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if json.NewDecoder(resp.Body).Decode(&eb) == nil {
			apiErr.Code = eb.Error.Code
			apiErr.Message = eb.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type SignupRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, c.raw, http.MethodPost, "/api/auth/signup", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type loginResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

// Login authenticates and keeps the access token in memory. The refresh
// token stays in the cookie jar and is never visible to callers.
func (c *Client) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	if err := c.session.BeginLogin(); err != nil {
		return nil, err
	}

	var resp loginResponse
	err := c.do(ctx, c.raw, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &resp)
	if err != nil {
		_ = c.session.FailLogin()
		return nil, err
	}

	if err := c.session.CompleteLogin(resp.AccessToken, resp.ExpiresAt); err != nil {
		return nil, err
	}
	return resp.User, nil
}

type refreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (c *Client) RefreshAccessToken(ctx context.Context) (string, time.Time, error) {
	var resp refreshResponse
	if err := c.do(ctx, c.raw, http.MethodPost, "/api/auth/refresh", nil, &resp); err != nil {
		return "", time.Time{}, err
	}
	if resp.AccessToken == "" {
		return "", time.Time{}, errors.New("refresh response carried no access token")
	}
	return resp.AccessToken, resp.ExpiresAt, nil
}

// Logout ends the session on the server and drops all local state. A refresh
// already in flight is waited for first, so it cannot revive the session. The
// local session is cleared even if the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	c.transport.AwaitRefresh(ctx)
	err := c.do(ctx, c.api, http.MethodPost, "/api/auth/logout", nil, nil)
	c.clearLocal()
	if err != nil && !errors.Is(err, ErrSessionExpired) {
		return err
	}
	return nil
}

func (c *Client) clearLocal() {
	if err := c.session.Reset(); err != nil {
		slog.Error("error resetting session", "component", "client", "error", err)
	}
	c.Conversations.Replace(nil)
}

// expire runs after a failed refresh: best-effort server logout with the
// cookie-only channel, then back to Anonymous.
func (c *Client) expire() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.do(ctx, c.raw, http.MethodPost, "/api/auth/logout", nil, nil)
	c.clearLocal()
}

func (c *Client) AccessChat(ctx context.Context, userID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, c.api, http.MethodPost, "/api/chat", map[string]string{"userId": userID}, &conv); err != nil {
		return nil, err
	}
	c.Conversations.Upsert(&conv)
	return &conv, nil
}

type Sidebar struct {
	Chats             []*models.Conversation `json:"chats"`
	FriendsToChatWith []models.UserSummary   `json:"friendsToChatWith"`
}

func (c *Client) Sidebar(ctx context.Context) (*Sidebar, error) {
	var sb Sidebar
	if err := c.do(ctx, c.api, http.MethodGet, "/api/chat/sidebar", nil, &sb); err != nil {
		return nil, err
	}
	c.Conversations.Replace(sb.Chats)
	return &sb, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*models.Message, error) {
	var msg models.Message
	err := c.do(ctx, c.api, http.MethodPost, "/api/message", map[string]string{
		"chatId":  chatID,
		"content": content,
	}, &msg)
	if err != nil {
		return nil, err
	}
	c.Conversations.ApplyMessage(&msg)
	return &msg, nil
}

func (c *Client) Messages(ctx context.Context, chatID string) ([]*models.Message, error) {
	var msgs []*models.Message
	if err := c.do(ctx, c.api, http.MethodGet, "/api/message/"+url.PathEscape(chatID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ReceiveMessage applies a realtime push to the conversation list.
func (c *Client) ReceiveMessage(msg *models.Message) {
	c.Conversations.ApplyMessage(msg)
}
