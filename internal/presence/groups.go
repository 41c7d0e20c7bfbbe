package presence

import "slices"

// GroupKind distinguishes user-visible rooms from per-connection feeds.
type GroupKind uint8

const (
	KindRoom GroupKind = iota + 1
	KindFeed
)

// GroupKey identifies a group. Rooms and feeds live in separate namespaces,
// so a room can never be mistaken for a feed.
type GroupKey struct {
	Kind GroupKind
	Name string
}

// Room returns the key of the named room.
func Room(name string) GroupKey {
	return GroupKey{Kind: KindRoom, Name: name}
}

// Feed returns the key of owner's feed group.
func Feed(owner ConnID) GroupKey {
	return GroupKey{Kind: KindFeed, Name: string(owner)}
}

func (k GroupKey) String() string {
	if k.Kind == KindFeed {
		return "feed:" + k.Name
	}
	return k.Name
}

// Groups tracks group membership in both directions. A group exists exactly
// while it has at least one member. Groups is not safe for concurrent use.
type Groups struct {
	members map[GroupKey]map[ConnID]struct{}
	byConn  map[ConnID]map[GroupKey]struct{}
}

// NewGroups creates an empty membership table.
func NewGroups() *Groups {
	return &Groups{
		members: make(map[GroupKey]map[ConnID]struct{}),
		byConn:  make(map[ConnID]map[GroupKey]struct{}),
	}
}

// Join adds id to the group and reports whether the group came into
// existence because of it.
func (g *Groups) Join(id ConnID, key GroupKey) bool {
	members, existed := g.members[key]
	if !existed {
		members = make(map[ConnID]struct{})
		g.members[key] = members
	}
	members[id] = struct{}{}

	keys, ok := g.byConn[id]
	if !ok {
		keys = make(map[GroupKey]struct{})
		g.byConn[id] = keys
	}
	keys[key] = struct{}{}
	return !existed
}

// Leave removes id from the group and reports whether the group ceased to
// exist because of it.
func (g *Groups) Leave(id ConnID, key GroupKey) bool {
	members, ok := g.members[key]
	if !ok {
		return false
	}
	if _, member := members[id]; !member {
		return false
	}
	delete(members, id)
	g.forget(id, key)
	if len(members) == 0 {
		delete(g.members, key)
		return true
	}
	return false
}

// LeaveAll removes id from every group it belongs to and returns the groups
// that ceased to exist.
func (g *Groups) LeaveAll(id ConnID) []GroupKey {
	var gone []GroupKey
	for key := range g.byConn[id] {
		if g.Leave(id, key) {
			gone = append(gone, key)
		}
	}
	return gone
}

// Evict removes every member of the group and returns who was removed.
func (g *Groups) Evict(key GroupKey) []ConnID {
	members := g.Members(key)
	for _, id := range members {
		g.forget(id, key)
	}
	delete(g.members, key)
	return members
}

// Exists reports whether the group has any members.
func (g *Groups) Exists(key GroupKey) bool {
	return len(g.members[key]) > 0
}

// Size returns the number of members in the group.
func (g *Groups) Size(key GroupKey) int {
	return len(g.members[key])
}

// IsMember reports whether id belongs to the group.
func (g *Groups) IsMember(id ConnID, key GroupKey) bool {
	_, ok := g.members[key][id]
	return ok
}

// Members returns the members of the group in ascending order.
func (g *Groups) Members(key GroupKey) []ConnID {
	members := make([]ConnID, 0, len(g.members[key]))
	for id := range g.members[key] {
		members = append(members, id)
	}
	slices.Sort(members)
	return members
}

// VisibleRooms lists every existing room whose name does not collide with a
// live connection identity.
func (g *Groups) VisibleRooms(isIdentity func(string) bool) []string {
	rooms := make([]string, 0, len(g.members))
	for key := range g.members {
		if key.Kind == KindRoom && !isIdentity(key.Name) {
			rooms = append(rooms, key.Name)
		}
	}
	slices.Sort(rooms)
	return rooms
}

// RoomsOf lists the visible rooms id belongs to.
func (g *Groups) RoomsOf(id ConnID, isIdentity func(string) bool) []string {
	rooms := make([]string, 0, len(g.byConn[id]))
	for key := range g.byConn[id] {
		if key.Kind == KindRoom && !isIdentity(key.Name) {
			rooms = append(rooms, key.Name)
		}
	}
	slices.Sort(rooms)
	return rooms
}

// FeedsOf lists the owners of the feeds id subscribes to, excluding its own.
func (g *Groups) FeedsOf(id ConnID) []ConnID {
	var owners []ConnID
	for key := range g.byConn[id] {
		if key.Kind == KindFeed && ConnID(key.Name) != id {
			owners = append(owners, ConnID(key.Name))
		}
	}
	slices.Sort(owners)
	return owners
}

func (g *Groups) forget(id ConnID, key GroupKey) {
	keys := g.byConn[id]
	delete(keys, key)
	if len(keys) == 0 {
		delete(g.byConn, id)
	}
}
