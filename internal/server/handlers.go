// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Tyrowin/presencehub/internal/protocol"
)

// WebSocketHandler upgrades GET requests to WebSocket connections and hands
// them to the gateway. The handshake query may carry username, rooms and
// codec parameters.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	codecName := query.Get("codec")
	if codecName == "" {
		codecName = s.cfg.DefaultCodec
	}
	codec, err := protocol.Lookup(codecName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, s.gateway, codec, r.RemoteAddr, s.cfg, s.logger)
	if err := s.gateway.start(client, handshakeFromQuery(query)); err != nil {
		s.logger.Warn("hub refused connection", zap.String("addr", r.RemoteAddr), zap.Error(err))
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Presence hub is running!")
}

type statusResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

// StatusHandler reports hub statistics as JSON.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hub.Stats(r.Context())
	if err != nil {
		http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := statusResponse{Status: "ok", Connections: stats.Connections, Rooms: stats.Rooms}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("error writing status response", zap.Error(err))
	}
}
