// Package presence implements the routing and presence engine of the hub:
// display-name registration, room and feed membership, address routing and
// the connect/disconnect lifecycle that keeps every client's presence lists
// in sync.
//
// The engine never touches sockets. It computes who should receive what and
// hands each delivery to a Deliverer supplied by the transport layer.
package presence

import "strings"

// ConnID is the transport-assigned identity of a live connection.
type ConnID string

// Inbound event names.
const (
	EventSetUsername = "set-username"
	EventMsg         = "msg"
	EventChat        = "chat"
	EventToggleFeed  = "toggle-feed"
	EventToggleRoom  = "toggle-room"
	EventCreateRoom  = "create-room"
	EventDeleteRoom  = "delete-room"
)

// Outbound event names. EventMsg and EventChat are used in both directions.
const (
	EventInit            = "init"
	EventUserList        = "user-list"
	EventRoomList        = "room-list"
	EventConfirmUsername = "confirm-username"
	EventMyRooms         = "my-rooms"
	EventMyFeeds         = "my-feeds"
)

// Event is a single outbound delivery.
type Event struct {
	Name    string
	Payload any
}

// Deliverer is the delivery capability the hub consumes. Deliver must not
// block; delivery is fire-and-forget.
type Deliverer interface {
	Deliver(id ConnID, ev Event)
}

// Snapshot is the private state sent to a connection once it is active.
type Snapshot struct {
	Username string   `json:"username"`
	Users    []string `json:"users"`
	Rooms    []string `json:"rooms"`
	MyRooms  []string `json:"myRooms"`
}

// ChatLine is the payload of an outbound chat event.
type ChatLine struct {
	Username string `json:"username"`
	Msg      any    `json:"msg"`
}

// Handshake carries the parameters a client supplied when connecting.
type Handshake struct {
	Username string
	Rooms    []string
}

// ParseRoomList splits a comma-separated room list, trimming every entry and
// dropping empty ones.
func ParseRoomList(raw string) []string {
	var rooms []string
	for _, part := range strings.Split(raw, ",") {
		if room := strings.TrimSpace(part); room != "" {
			rooms = append(rooms, room)
		}
	}
	return rooms
}
