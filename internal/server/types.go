// Package server defines utility helpers that are reused across client and
// gateway logic.
package server

import (
	"net/url"
	"strings"

	"github.com/Tyrowin/presencehub/internal/presence"
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// handshakeFromQuery reads the presence parameters a client supplies on the
// upgrade URL.
func handshakeFromQuery(q url.Values) presence.Handshake {
	return presence.Handshake{
		Username: q.Get("username"),
		Rooms:    presence.ParseRoomList(q.Get("rooms")),
	}
}
