// Package integration contains black-box tests that drive the presence hub
// through real WebSocket connections.
//
// These tests verify the system behavior when multiple clients connect
// simultaneously, join rooms and feeds, and exchange routed messages.
package integration

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/presencehub/internal/presence"
	"github.com/Tyrowin/presencehub/internal/protocol"
	"github.com/Tyrowin/presencehub/test/testhelpers"
)

// TestRoomFanOutAcrossClients checks that a room message reaches every other
// member and never echoes back to the sender.
func TestRoomFanOutAcrossClients(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	const numClients = 5
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = testhelpers.ConnectWebSocket(t, ts, fmt.Sprintf("?username=user%d&rooms=lobby", i))
		testhelpers.ExpectEvent(t, conns[i], presence.EventInit)
	}

	testhelpers.SendEvent(t, conns[0], presence.EventMsg, map[string]any{
		"address": "/room/lobby/chat",
		"body":    "hello room",
	})

	for i := 1; i < numClients; i++ {
		msg := testhelpers.ExpectEvent(t, conns[i], presence.EventMsg)
		assert.Equal(t, map[string]any{"address": "/room/lobby/chat", "body": "hello room"}, msg.Data,
			"client %d", i)
	}
	testhelpers.ExpectNoEvent(t, conns[0], presence.EventMsg, 200*time.Millisecond)
}

// TestFeedSubscription follows a feed from subscribe through publish to the
// owner going away.
func TestFeedSubscription(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	alice := testhelpers.ConnectWebSocket(t, ts, "?username=alice")
	testhelpers.ExpectEvent(t, alice, presence.EventInit)
	bob := testhelpers.ConnectWebSocket(t, ts, "?username=bob")
	testhelpers.ExpectEvent(t, bob, presence.EventInit)
	carol := testhelpers.ConnectWebSocket(t, ts, "?username=carol")
	testhelpers.ExpectEvent(t, carol, presence.EventInit)

	testhelpers.SendEvent(t, bob, presence.EventToggleFeed, "alice")
	assert.Equal(t, []any{"alice"}, testhelpers.ExpectEvent(t, bob, presence.EventMyFeeds).Data)

	testhelpers.SendEvent(t, alice, presence.EventMsg, map[string]any{"address": "/feed/status", "mood": "busy"})
	msg := testhelpers.ExpectEvent(t, bob, presence.EventMsg)
	assert.Equal(t, map[string]any{"address": "/user/alice/status", "mood": "busy"}, msg.Data)
	testhelpers.ExpectNoEvent(t, carol, presence.EventMsg, 200*time.Millisecond)

	require.NoError(t, testhelpers.CloseWebSocket(alice))
	assert.Equal(t, []any{"bob", "carol"}, testhelpers.ExpectEvent(t, bob, presence.EventUserList).Data)

	testhelpers.SendEvent(t, bob, presence.EventToggleFeed, "alice")
	assert.Equal(t, []any{}, testhelpers.ExpectEvent(t, bob, presence.EventMyFeeds).Data,
		"the feed dies with its owner")
}

// TestConcurrentConnectionsWithSameName connects many clients asking for the
// same name and checks that every one of them ends up with a distinct name.
func TestConcurrentConnectionsWithSameName(t *testing.T) {
	srv, ts := testhelpers.StartServer(t, nil)

	const numClients = 10
	names := make([]string, numClients)

	headers := http.Header{}
	headers.Set("Origin", testhelpers.TestOrigin)
	url := testhelpers.WebSocketURL(ts, "?username=dup")

	conns := make([]*websocket.Conn, numClients)
	errs := make([]error, numClients)
	var wg sync.WaitGroup
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], names[i], errs[i] = connectAndReadName(url, headers)
		}(i)
	}
	wg.Wait()

	for _, conn := range conns {
		if conn != nil {
			t.Cleanup(func() { _ = conn.Close() })
		}
	}
	for i, err := range errs {
		require.NoError(t, err, "client %d", i)
	}

	seen := make(map[string]bool, numClients)
	for _, name := range names {
		require.NotEmpty(t, name)
		assert.False(t, seen[name], "name %q assigned twice", name)
		seen[name] = true
	}
	assert.True(t, seen["dup"], "one client gets the requested name")

	stats, err := srv.Hub().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, numClients, stats.Connections)
	assert.Equal(t, numClients, srv.Gateway().Count())
}

// TestRoomLifecycleBroadcasts checks that room-list goes out when the last
// member leaves a room and the room disappears.
func TestRoomLifecycleBroadcasts(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	alice := testhelpers.ConnectWebSocket(t, ts, "?username=alice")
	testhelpers.ExpectEvent(t, alice, presence.EventInit)
	bob := testhelpers.ConnectWebSocket(t, ts, "?username=bob&rooms=attic")
	testhelpers.ExpectEvent(t, bob, presence.EventInit)

	assert.Equal(t, []any{"attic"}, testhelpers.ExpectEvent(t, alice, presence.EventRoomList).Data)

	require.NoError(t, testhelpers.CloseWebSocket(bob))
	testhelpers.ExpectEvent(t, alice, presence.EventUserList)
	assert.Equal(t, []any{}, testhelpers.ExpectEvent(t, alice, presence.EventRoomList).Data)
}

// connectAndReadName dials url and returns the connection with the name
// from its init snapshot.
func connectAndReadName(url string, headers http.Header) (*websocket.Conn, string, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, "", err
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			return conn, "", err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return conn, "", err
		}
		frame, err := protocol.JSON.Decode(data)
		if err != nil {
			return conn, "", err
		}
		if frame.Event != presence.EventInit {
			continue
		}
		snapshot, _ := frame.Data.(map[string]any)
		name, _ := snapshot["username"].(string)
		return conn, name, nil
	}
}
