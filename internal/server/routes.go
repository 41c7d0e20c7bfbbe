// Package server wires HTTP handlers into a ServeMux for the presence hub via
// routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health checks and the WebSocket endpoint.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/healthz", s.StatusHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	return mux
}
