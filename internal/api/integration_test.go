package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threads/internal/client"
	"threads/internal/models"
	"threads/internal/session"
	"threads/internal/ws"
)

type countingTransport struct {
	refreshes atomic.Int32
	logouts   atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.URL.Path {
	case "/api/auth/refresh":
		c.refreshes.Add(1)
	case "/api/auth/logout":
		c.logouts.Add(1)
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestClientRefreshesOnceAfterAccessTokenExpires(t *testing.T) {
	env := newTestEnv(t)
	env.signupAndLogin(t, "bobby")

	counter := &countingTransport{}
	c, err := client.New(env.server.URL, client.WithBaseTransport(counter))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Signup(ctx, client.SignupRequest{Name: "Alice", Username: "alice", Email: "alice@example.com", Password: testPassword})
	require.NoError(t, err)
	_, err = c.Login(ctx, "alice", testPassword)
	require.NoError(t, err)
	require.Equal(t, session.StateAuthenticated, c.State())
	before := c.AccessToken()

	env.advanceClock(2 * time.Minute)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Sidebar(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), counter.refreshes.Load())
	assert.NotEqual(t, before, c.AccessToken())
	assert.Equal(t, session.StateAuthenticated, c.State())

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, session.StateAnonymous, c.State())
	assert.Empty(t, c.AccessToken())
	assert.Equal(t, int32(1), counter.logouts.Load())

	// Logout cleared the cookie and bumped the session version.
	_, _, err = c.RefreshAccessToken(ctx)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

type wsFrame struct {
	Op   ws.OpCode       `json:"op"`
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

func dialWS(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// readUntil reads frames until one of type eventType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame wsFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Op == ws.OpDispatch && frame.Type == eventType {
			return frame
		}
	}
}

func TestWebSocketSetupJoinAndDelivery(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")
	bobby := env.signupAndLogin(t, "bobby")

	conv := decodeJSON[models.Conversation](t, env.request(t, http.MethodPost, "/api/chat", alice.Token, AccessChatRequest{UserID: bobby.ID}))

	conn := dialWS(t, env, bobby.Token)

	var hello wsFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, ws.OpHello, hello.Op)

	// The claimed id is ignored; the connection stays bound to bobby.
	require.NoError(t, conn.WriteJSON(map[string]any{"op": 0, "t": ws.CmdSetup, "d": map[string]any{"user": map[string]string{"id": alice.ID}}}))
	connected := readUntil(t, conn, ws.EventConnected)
	var payload ws.ConnectedPayload
	require.NoError(t, json.Unmarshal(connected.Data, &payload))
	assert.Equal(t, bobby.ID, payload.UserID)

	require.NoError(t, conn.WriteJSON(map[string]any{"op": 0, "t": ws.CmdJoinRoom, "d": map[string]string{"chatId": conv.ID}}))
	joined := readUntil(t, conn, ws.EventRoomJoined)
	var joinedPayload ws.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(joined.Data, &joinedPayload))
	assert.Equal(t, conv.ID, joinedPayload.ChatID)

	snapshot := env.hub.Snapshot()
	assert.Equal(t, 1, snapshot.PersonalRooms[bobby.ID])
	assert.Zero(t, snapshot.PersonalRooms[alice.ID])
	assert.Equal(t, 1, snapshot.ChatRooms[conv.ID])

	expectStatus(t, env.request(t, http.MethodPost, "/api/message", alice.Token, SendMessageRequest{ChatID: conv.ID, Content: "hello bobby"}), http.StatusCreated)

	received := readUntil(t, conn, ws.EventReceiveMessage)
	var msg models.Message
	require.NoError(t, json.Unmarshal(received.Data, &msg))
	assert.Equal(t, "hello bobby", msg.Content)
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.Equal(t, alice.ID, msg.Sender.ID)
	assert.Equal(t, "alice", msg.Sender.Username)
}

func TestWebSocketRejectsMissingOrInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"

	for _, suffix := range []string{"", "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(url+suffix, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}
