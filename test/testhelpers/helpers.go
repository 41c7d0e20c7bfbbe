// Package testhelpers provides common utilities for black-box tests of the
// presence hub server.
//
// It starts a full server behind httptest, dials WebSocket clients with an
// allowed origin and reads decoded protocol frames so test files stay short.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/presencehub/internal/protocol"
	"github.com/Tyrowin/presencehub/internal/server"
)

// TestOrigin is the Origin header every helper connection sends.
const TestOrigin = "http://localhost:8080"

// StartServer creates a server with the test origin allowed, starts its hub
// and serves its routes from an httptest server. mutate may adjust the
// configuration before the server is built. Both are torn down on cleanup.
func StartServer(t *testing.T, mutate func(*server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	cfg.ShutdownTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	srv := server.New(cfg, zaptest.NewLogger(t))
	srv.StartHub()
	ts := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		srv.Gateway().CloseAll()
		_ = srv.Gateway().Wait(2 * time.Second)
		_ = srv.Hub().Shutdown(2 * time.Second)
		ts.Close()
	})
	return srv, ts
}

// WebSocketURL builds the /ws URL of ts with an optional query string such
// as "?username=alice".
func WebSocketURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
}

// ConnectWebSocket dials the hub and closes the connection on cleanup.
func ConnectWebSocket(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(WebSocketURL(ts, query), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one JSON frame.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.Frame{Event: event, Data: data}))
}

// ReceiveFrame reads and decodes one JSON frame, failing after two seconds.
func ReceiveFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	frame, err := protocol.JSON.Decode(data)
	require.NoError(t, err)
	return frame
}

// ExpectEvent skips frames until one named event arrives and returns it.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string) protocol.Frame {
	t.Helper()
	for {
		frame := ReceiveFrame(t, conn)
		if frame.Event == event {
			return frame
		}
	}
}

// ExpectNoEvent fails if a frame named event arrives within wait. Other
// events are ignored.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, event string, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.JSON.Decode(data)
		require.NoError(t, err)
		require.NotEqual(t, event, frame.Event, "unexpected %s frame: %v", event, frame.Data)
	}
}

// CloseWebSocket sends a normal closure frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
