// Package server tracks live WebSocket clients and delivers presence events
// to them via the Gateway type.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/presencehub/internal/presence"
	"github.com/Tyrowin/presencehub/internal/protocol"
)

// Gateway maps connection identities to WebSocket clients and implements
// presence.Deliverer on top of their send buffers.
type Gateway struct {
	logger  *zap.Logger
	clients map[presence.ConnID]*Client
	mutex   sync.RWMutex
	wg      sync.WaitGroup
}

// NewGateway creates an empty Gateway.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		logger:  logger,
		clients: make(map[presence.ConnID]*Client),
	}
}

// Deliver encodes ev with the recipient's codec and queues it without
// blocking. A client whose buffer is full is closed; its read pump then
// reports the disconnect to the hub.
func (g *Gateway) Deliver(id presence.ConnID, ev presence.Event) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	client, exists := g.clients[id]
	if !exists || client.closed.Load() {
		return
	}

	data, err := client.codec.Encode(protocol.Frame{Event: ev.Name, Data: ev.Payload})
	if err != nil {
		g.logger.Error("failed to encode event", zap.String("conn", string(id)), zap.String("event", ev.Name), zap.Error(err))
		return
	}

	select {
	case client.send <- data:
	default:
		if client.closed.CompareAndSwap(false, true) {
			g.logger.Warn("send buffer full, closing client", zap.String("conn", string(id)), zap.String("addr", client.addr))
			go client.closeConnection()
		}
	}
}

// start registers the client, announces it to the hub and launches its
// pumps. The write pump runs before the hub is told so the init snapshot
// has somewhere to go.
func (g *Gateway) start(client *Client, hs presence.Handshake) error {
	g.mutex.Lock()
	g.clients[client.id] = client
	clientCount := len(g.clients)
	g.mutex.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		client.writePump()
	}()

	name, err := client.hub.Connect(context.Background(), client.id, hs)
	if err != nil {
		g.unregister(client)
		return err
	}
	g.logger.Info("client registered",
		zap.String("conn", string(client.id)),
		zap.String("name", name),
		zap.String("addr", client.addr),
		zap.String("codec", client.codec.Name()),
		zap.Int("total", clientCount))

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		client.readPump()
	}()
	return nil
}

// unregister removes the client and closes its send buffer, which makes the
// write pump send a close frame and exit.
func (g *Gateway) unregister(client *Client) {
	g.mutex.Lock()
	current, ok := g.clients[client.id]
	if !ok || current != client {
		g.mutex.Unlock()
		return
	}
	delete(g.clients, client.id)
	client.closed.Store(true)
	clientCount := len(g.clients)
	g.mutex.Unlock()

	close(client.send)
	g.logger.Info("client unregistered",
		zap.String("conn", string(client.id)),
		zap.String("addr", client.addr),
		zap.Int("total", clientCount))
}

// Count returns the number of registered clients.
func (g *Gateway) Count() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.clients)
}

// CloseAll closes every client connection. Each read pump then tears its
// client down.
func (g *Gateway) CloseAll() {
	g.mutex.RLock()
	clients := make([]*Client, 0, len(g.clients))
	for _, client := range g.clients {
		clients = append(clients, client)
	}
	g.mutex.RUnlock()

	for _, client := range clients {
		client.closeConnection()
	}
	g.logger.Info("closed client connections", zap.Int("count", len(clients)))
}

// Wait blocks until every pump goroutine has exited or the timeout passes.
func (g *Gateway) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		g.logger.Warn("gateway shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
