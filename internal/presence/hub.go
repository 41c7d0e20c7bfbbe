package presence

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrHubClosed is returned for requests submitted after the hub stopped.
var ErrHubClosed = errors.New("presence: hub closed")

// State is the lifecycle state of a connection.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// session is the hub's view of one connection.
type session struct {
	id         ConnID
	name       string
	state      State
	lastInRoom bool
}

// Stats is a point-in-time summary of hub state.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

type op struct {
	fn   func()
	done chan struct{}
}

// Hub owns the registry and the membership table. Every request runs to
// completion on the hub's goroutine before the next one starts, so handlers
// never interleave their reads and writes of shared state.
type Hub struct {
	logger   *zap.Logger
	out      Deliverer
	registry *Registry
	groups   *Groups
	sessions map[ConnID]*session

	ops    chan op
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub that delivers through out. Call Run to start it.
func NewHub(out Deliverer, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:   logger.Named("presence"),
		out:      out,
		registry: NewRegistry(),
		groups:   NewGroups(),
		sessions: make(map[ConnID]*session),
		ops:      make(chan op),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Run processes requests until Shutdown is called. It should be started in
// its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			return
		case o := <-h.ops:
			h.exec(o)
		}
	}
}

func (h *Hub) exec(o op) {
	defer close(o.done)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic in handler", zap.Any("panic", r))
		}
	}()
	o.fn()
}

// do runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) do(ctx context.Context, fn func()) error {
	o := op{fn: fn, done: make(chan struct{})}
	select {
	case h.ops <- o:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
	<-o.done
	return nil
}

// Connect registers a new connection and returns its assigned display name.
func (h *Hub) Connect(ctx context.Context, id ConnID, hs Handshake) (string, error) {
	var name string
	err := h.do(ctx, func() { name = h.connect(id, hs) })
	return name, err
}

// Disconnect tears down a connection's presence.
func (h *Hub) Disconnect(ctx context.Context, id ConnID) error {
	return h.do(ctx, func() { h.disconnect(id) })
}

// Dispatch handles one inbound event from a connection.
func (h *Hub) Dispatch(ctx context.Context, id ConnID, event string, data any) error {
	return h.do(ctx, func() { h.dispatch(id, event, data) })
}

// Stats returns the current connection and room counts.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := h.do(ctx, func() {
		st = Stats{
			Connections: len(h.sessions),
			Rooms:       len(h.visibleRooms()),
		}
	})
	return st, err
}

// Shutdown stops the hub and waits for Run to return.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()

	select {
	case <-h.done:
		h.logger.Info("hub stopped")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}

func (h *Hub) isIdentity(name string) bool {
	_, ok := h.sessions[ConnID(name)]
	return ok
}

func (h *Hub) visibleRooms() []string {
	return h.groups.VisibleRooms(h.isIdentity)
}

func (h *Hub) myRooms(id ConnID) []string {
	return h.groups.RoomsOf(id, h.isIdentity)
}

// myFeeds resolves id's subscriptions to the owners' current names. Owners
// that are no longer registered are skipped.
func (h *Hub) myFeeds(id ConnID) []string {
	owners := h.groups.FeedsOf(id)
	names := make([]string, 0, len(owners))
	for _, owner := range owners {
		if name, ok := h.registry.Name(owner); ok {
			names = append(names, name)
		}
	}
	return names
}

func (h *Hub) send(id ConnID, event string, payload any) {
	h.out.Deliver(id, Event{Name: event, Payload: payload})
}

// broadcastExcept delivers to every connection but except. An empty except
// reaches everyone.
func (h *Hub) broadcastExcept(except ConnID, event string, payload any) {
	for id := range h.sessions {
		if id != except {
			h.send(id, event, payload)
		}
	}
}

func (h *Hub) sendToGroup(key GroupKey, except ConnID, event string, payload any) {
	for _, id := range h.groups.Members(key) {
		if id != except {
			h.send(id, event, payload)
		}
	}
}
