package presence

import (
	"maps"
	"strings"

	"go.uber.org/zap"
)

func (h *Hub) connect(id ConnID, hs Handshake) string {
	if s, ok := h.sessions[id]; ok {
		h.logger.Warn("duplicate connect ignored", zap.String("conn", string(id)))
		return s.name
	}

	s := &session{id: id, state: StateConnecting}
	h.sessions[id] = s
	s.name = h.registry.Register(id, hs.Username)
	h.groups.Join(id, Feed(id))

	roomsChanged := false
	for _, room := range hs.Rooms {
		if h.groups.Join(id, Room(room)) {
			roomsChanged = true
		}
	}
	s.state = StateActive

	if requested := strings.TrimSpace(hs.Username); requested != "" && requested != s.name {
		h.logger.Debug("requested name unavailable, using identity",
			zap.String("conn", string(id)), zap.String("name", requested))
	}

	h.send(id, EventInit, Snapshot{
		Username: s.name,
		Users:    h.registry.Names(),
		Rooms:    h.visibleRooms(),
		MyRooms:  h.myRooms(id),
	})
	h.broadcastExcept(id, EventUserList, h.registry.Names())
	if roomsChanged {
		h.broadcastExcept(id, EventRoomList, h.visibleRooms())
	}

	h.logger.Info("connection active",
		zap.String("conn", string(id)),
		zap.String("name", s.name),
		zap.Int("total", len(h.sessions)))
	return s.name
}

func (h *Hub) disconnect(id ConnID) {
	s, ok := h.sessions[id]
	if !ok {
		return
	}

	s.state = StateDisconnecting
	for _, room := range h.myRooms(id) {
		if h.groups.Size(Room(room)) == 1 {
			s.lastInRoom = true
			break
		}
	}
	h.groups.LeaveAll(id)
	delete(h.sessions, id)

	h.registry.Unregister(id)
	h.groups.Evict(Feed(id))
	s.state = StateDisconnected

	h.broadcastExcept("", EventUserList, h.registry.Names())
	if s.lastInRoom {
		h.broadcastExcept("", EventRoomList, h.visibleRooms())
	}

	h.logger.Info("connection closed",
		zap.String("conn", string(id)),
		zap.String("name", s.name),
		zap.Int("total", len(h.sessions)))
}

func (h *Hub) dispatch(id ConnID, event string, data any) {
	s, ok := h.sessions[id]
	if !ok || s.state != StateActive {
		h.logger.Debug("event from inactive connection dropped",
			zap.String("conn", string(id)), zap.String("event", event))
		return
	}

	switch event {
	case EventMsg:
		msg, ok := data.(map[string]any)
		if !ok {
			h.logger.Debug("msg payload is not an object", zap.String("conn", string(id)))
			return
		}
		h.handleMsg(s, msg)
	case EventChat:
		h.broadcastExcept("", EventChat, ChatLine{Username: s.name, Msg: data})
	default:
		arg, ok := data.(string)
		if !ok {
			h.logger.Debug("event argument is not a string",
				zap.String("conn", string(id)), zap.String("event", event))
			return
		}
		h.dispatchNamed(s, event, arg)
	}
}

func (h *Hub) dispatchNamed(s *session, event, arg string) {
	switch event {
	case EventSetUsername:
		h.setUsername(s, arg)
	case EventToggleFeed:
		h.toggleFeed(s, arg)
	case EventToggleRoom:
		h.toggleRoom(s, arg)
	case EventCreateRoom:
		h.createRoom(s, arg)
	case EventDeleteRoom:
		h.deleteRoom(arg)
	default:
		h.logger.Debug("unknown event dropped",
			zap.String("conn", string(s.id)), zap.String("event", event))
	}
}

func (h *Hub) setUsername(s *session, name string) {
	if !h.registry.Rename(s.id, name) {
		h.logger.Debug("rename ignored", zap.String("conn", string(s.id)), zap.String("name", name))
		return
	}
	s.name = name
	h.broadcastExcept("", EventUserList, h.registry.Names())
	h.send(s.id, EventConfirmUsername, name)
}

// route resolves a message to its scope, recipients and rewritten copy.
func (h *Hub) route(s *session, msg map[string]any) (Scope, []ConnID, map[string]any, bool) {
	address, _ := msg["address"].(string)
	r, ok := ParseAddress(address)
	if !ok {
		return "", nil, nil, false
	}

	out := maps.Clone(msg)
	out["address"] = r.Rewrite(s.name)

	var recipients []ConnID
	switch r.Scope {
	case ScopeBroadcast:
		for id := range h.sessions {
			if id != s.id {
				recipients = append(recipients, id)
			}
		}
	case ScopeFeed:
		recipients = without(h.groups.Members(Feed(s.id)), s.id)
	case ScopeRoom:
		recipients = without(h.groups.Members(Room(r.Target)), s.id)
	case ScopeUser:
		if target, ok := h.registry.Lookup(r.Target); ok && target != s.id {
			recipients = []ConnID{target}
		}
	}
	return r.Scope, recipients, out, true
}

func (h *Hub) handleMsg(s *session, msg map[string]any) {
	scope, recipients, out, ok := h.route(s, msg)
	if !ok {
		h.logger.Debug("unroutable address dropped",
			zap.String("conn", string(s.id)), zap.Any("address", msg["address"]))
		return
	}
	if len(recipients) == 0 {
		h.logger.Debug("no recipients", zap.String("conn", string(s.id)), zap.String("scope", string(scope)))
	}
	for _, id := range recipients {
		h.send(id, EventMsg, out)
	}
}

func (h *Hub) toggleFeed(s *session, target string) {
	owner, registered := h.registry.Lookup(target)
	feed := Feed(owner)

	switch {
	case registered && owner == s.id:
		h.logger.Debug("own feed toggle ignored", zap.String("conn", string(s.id)))
	case registered && h.groups.IsMember(s.id, feed):
		h.groups.Leave(s.id, feed)
	case registered && h.groups.Exists(feed):
		h.groups.Join(s.id, feed)
	default:
		h.logger.Debug("feed target unavailable", zap.String("conn", string(s.id)), zap.String("name", target))
	}
	h.send(s.id, EventMyFeeds, h.myFeeds(s.id))
}

func (h *Hub) toggleRoom(s *session, room string) {
	if strings.TrimSpace(room) == "" {
		return
	}
	key := Room(room)

	var changed bool
	if h.groups.IsMember(s.id, key) {
		changed = h.groups.Leave(s.id, key)
	} else {
		changed = h.groups.Join(s.id, key)
	}

	h.send(s.id, EventMyRooms, h.myRooms(s.id))
	if changed {
		h.broadcastExcept("", EventRoomList, h.visibleRooms())
	}
}

func (h *Hub) createRoom(s *session, room string) {
	if strings.TrimSpace(room) == "" {
		return
	}
	if h.isIdentity(room) {
		h.logger.Debug("room name collides with a connection identity",
			zap.String("conn", string(s.id)), zap.String("room", room))
		return
	}

	h.groups.Join(s.id, Room(room))
	h.send(s.id, EventMyRooms, h.myRooms(s.id))
	h.broadcastExcept("", EventRoomList, h.visibleRooms())
}

func (h *Hub) deleteRoom(room string) {
	if strings.TrimSpace(room) == "" {
		return
	}

	evicted := h.groups.Evict(Room(room))
	for _, id := range evicted {
		if _, ok := h.sessions[id]; ok {
			h.send(id, EventMyRooms, h.myRooms(id))
		}
	}
	h.broadcastExcept("", EventRoomList, h.visibleRooms())
}

func without(ids []ConnID, skip ConnID) []ConnID {
	out := ids[:0]
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
