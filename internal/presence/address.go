package presence

import "strings"

// Scope selects how a routed message is fanned out.
type Scope string

const (
	ScopeBroadcast Scope = "broadcast"
	ScopeFeed      Scope = "feed"
	ScopeRoom      Scope = "room"
	ScopeUser      Scope = "user"
)

// Route is a parsed message address.
type Route struct {
	Scope     Scope
	Target    string // room or user name; empty for broadcast and feed
	Remainder string // path after the scope prefix, without a leading slash
}

// ParseAddress parses an address of the form /<scope>/<target>/<rest...>.
// Broadcast and feed addresses carry no target, so their remainder starts
// right after the scope. It reports false for anything it cannot route.
func ParseAddress(address string) (Route, bool) {
	if !strings.HasPrefix(address, "/") {
		return Route{}, false
	}
	parts := strings.Split(address, "/")

	route := Route{Scope: Scope(parts[1])}
	switch route.Scope {
	case ScopeBroadcast, ScopeFeed:
		route.Remainder = strings.Join(parts[2:], "/")
	case ScopeRoom, ScopeUser:
		if len(parts) > 2 {
			route.Target = parts[2]
		}
		if len(parts) > 3 {
			route.Remainder = strings.Join(parts[3:], "/")
		}
	default:
		return Route{}, false
	}
	return route, true
}

// Rewrite returns the address recipients see. It always names the origin:
// the room for room-scoped messages and the sender for everything else.
func (r Route) Rewrite(sender string) string {
	var suffix string
	if r.Remainder != "" {
		suffix = "/" + r.Remainder
	}
	if r.Scope == ScopeRoom {
		return "/room/" + r.Target + suffix
	}
	return "/user/" + sender + suffix
}
