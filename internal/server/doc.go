// Package server implements the HTTP and WebSocket transport of the presence
// hub.
//
// The implementation is organized into specialized files for configuration,
// the client gateway, individual clients, routing, and HTTP handlers. The
// presence engine itself lives in package presence; this package only
// accepts connections, moves frames and delivers what the engine decides.
package server
