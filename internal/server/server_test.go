package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/presencehub/internal/presence"
	"github.com/Tyrowin/presencehub/internal/protocol"
)

const testOrigin = "http://localhost:3000"

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.ShutdownTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	s := New(cfg, zaptest.NewLogger(t))
	s.StartHub()
	ts := httptest.NewServer(s.Routes())

	t.Cleanup(func() {
		s.Gateway().CloseAll()
		assert.NoError(t, s.Gateway().Wait(2*time.Second))
		assert.NoError(t, s.Hub().Shutdown(2*time.Second))
		ts.Close()
	})
	return s, ts
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", testOrigin)

	conn, resp, err := dialer.Dial(wsURL(ts, query), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, codec protocol.Codec) protocol.Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	if codec.Binary() {
		require.Equal(t, websocket.BinaryMessage, messageType)
	} else {
		require.Equal(t, websocket.TextMessage, messageType)
	}

	frame, err := codec.Decode(data)
	require.NoError(t, err)
	return frame
}

// expectEvent reads frames until one named event arrives.
func expectEvent(t *testing.T, conn *websocket.Conn, event string) protocol.Frame {
	t.Helper()
	for {
		frame := readFrame(t, conn, protocol.JSON)
		if frame.Event == event {
			return frame
		}
	}
}

func expectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", data)
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.Frame{Event: event, Data: data}))
}

func TestWebSocketInitAndUserList(t *testing.T) {
	_, ts := newTestServer(t, nil)

	alice := dial(t, ts, "?username=alice&rooms=lobby,%20games")
	snapshot := expectEvent(t, alice, presence.EventInit)
	assert.Equal(t, map[string]any{
		"username": "alice",
		"users":    []any{"alice"},
		"rooms":    []any{"games", "lobby"},
		"myRooms":  []any{"games", "lobby"},
	}, snapshot.Data)

	bob := dial(t, ts, "?username=bob")
	expectEvent(t, bob, presence.EventInit)
	userList := expectEvent(t, alice, presence.EventUserList)
	assert.Equal(t, []any{"alice", "bob"}, userList.Data)
}

func TestWebSocketRoomMessageAndDisconnect(t *testing.T) {
	_, ts := newTestServer(t, nil)

	alice := dial(t, ts, "?username=alice")
	expectEvent(t, alice, presence.EventInit)
	bob := dial(t, ts, "?username=bob")
	expectEvent(t, bob, presence.EventInit)
	expectEvent(t, alice, presence.EventUserList)

	send(t, bob, presence.EventCreateRoom, "lobby")
	expectEvent(t, bob, presence.EventMyRooms)
	assert.Equal(t, []any{"lobby"}, expectEvent(t, alice, presence.EventRoomList).Data)

	send(t, alice, presence.EventToggleRoom, "lobby")
	assert.Equal(t, []any{"lobby"}, expectEvent(t, alice, presence.EventMyRooms).Data)

	send(t, alice, presence.EventMsg, map[string]any{"address": "/room/lobby/ping", "text": "hi"})
	msg := expectEvent(t, bob, presence.EventMsg)
	assert.Equal(t, map[string]any{"address": "/room/lobby/ping", "text": "hi"}, msg.Data)

	send(t, alice, presence.EventMsg, map[string]any{"address": "/user/bob/dm"})
	msg = expectEvent(t, bob, presence.EventMsg)
	assert.Equal(t, "/user/alice/dm", msg.Data.(map[string]any)["address"])

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Equal(t, []any{"alice"}, expectEvent(t, alice, presence.EventUserList).Data)
}

func TestWebSocketRename(t *testing.T) {
	_, ts := newTestServer(t, nil)

	conn := dial(t, ts, "")
	snapshot := expectEvent(t, conn, presence.EventInit)
	generated := snapshot.Data.(map[string]any)["username"].(string)
	assert.NotEmpty(t, generated, "connection identity is used when no name is requested")

	send(t, conn, presence.EventSetUsername, "zed")
	assert.Equal(t, []any{"zed"}, expectEvent(t, conn, presence.EventUserList).Data)
	assert.Equal(t, "zed", expectEvent(t, conn, presence.EventConfirmUsername).Data)
}

func TestWebSocketCBORCodec(t *testing.T) {
	_, ts := newTestServer(t, nil)

	conn := dial(t, ts, "?username=carol&codec=cbor")
	snapshot := readFrame(t, conn, protocol.CBOR)
	require.Equal(t, presence.EventInit, snapshot.Event)
	assert.Equal(t, "carol", snapshot.Data.(map[string]any)["username"])

	data, err := protocol.CBOR.Encode(protocol.Frame{Event: presence.EventChat, Data: "hello"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))

	chat := readFrame(t, conn, protocol.CBOR)
	assert.Equal(t, presence.EventChat, chat.Event)
	assert.Equal(t, map[string]any{"username": "carol", "msg": "hello"}, chat.Data)
}

func TestWebSocketInvalidFrameKeepsConnection(t *testing.T) {
	_, ts := newTestServer(t, nil)

	conn := dial(t, ts, "?username=dave")
	expectEvent(t, conn, presence.EventInit)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":"no event"}`)))
	send(t, conn, presence.EventChat, "still here")

	chat := expectEvent(t, conn, presence.EventChat)
	assert.Equal(t, map[string]any{"username": "dave", "msg": "still here"}, chat.Data)
}

func TestWebSocketRateLimit(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 1, RefillInterval: time.Hour}
	})

	conn := dial(t, ts, "?username=erin")
	expectEvent(t, conn, presence.EventInit)

	send(t, conn, presence.EventChat, "first")
	send(t, conn, presence.EventChat, "second")

	chat := expectEvent(t, conn, presence.EventChat)
	assert.Equal(t, "first", chat.Data.(map[string]any)["msg"])
	expectNoFrame(t, conn, 200*time.Millisecond)
}

func TestWebSocketRejections(t *testing.T) {
	_, ts := newTestServer(t, nil)

	t.Run("non-GET method", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/ws", "text/plain", strings.NewReader("x"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("unknown codec", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Origin", testOrigin)
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "?codec=xml"), headers)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("disallowed origin", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Origin", "http://evil.example")
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), headers)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestHealthHandlers(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Presence hub is running!", string(body))

	conn := dial(t, ts, "?username=frank&rooms=attic")
	expectEvent(t, conn, presence.EventInit)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, statusResponse{Status: "ok", Connections: 1, Rooms: 1}, status)
}
