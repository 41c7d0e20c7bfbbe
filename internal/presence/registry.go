package presence

import (
	"slices"
	"strconv"
	"strings"
)

// Registry is the bijection between connection identities and display names.
// It is not safe for concurrent use; the Hub owns it.
type Registry struct {
	byName map[string]ConnID
	byID   map[ConnID]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]ConnID),
		byID:   make(map[ConnID]string),
	}
}

// Register binds id to desired and returns the name actually assigned. A
// blank or already-taken name falls back to the identity itself.
func (r *Registry) Register(id ConnID, desired string) string {
	r.Unregister(id)

	name := strings.TrimSpace(desired)
	if name == "" || r.taken(name, id) {
		name = string(id)
	}
	for n := 2; r.taken(name, id); n++ {
		name = string(id) + "#" + strconv.Itoa(n)
	}

	r.byName[name] = id
	r.byID[id] = name
	return name
}

// Rename moves id to name. It reports false and changes nothing when the name
// is blank, held by another connection, already id's name, or id is unknown.
func (r *Registry) Rename(id ConnID, name string) bool {
	current, ok := r.byID[id]
	if !ok || strings.TrimSpace(name) == "" || name == current || r.taken(name, id) {
		return false
	}
	delete(r.byName, current)
	r.byName[name] = id
	r.byID[id] = name
	return true
}

// Unregister removes id's binding and returns the name it held.
func (r *Registry) Unregister(id ConnID) (string, bool) {
	name, ok := r.byID[id]
	if !ok {
		return "", false
	}
	delete(r.byID, id)
	delete(r.byName, name)
	return name, true
}

// Lookup resolves a display name to its connection.
func (r *Registry) Lookup(name string) (ConnID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Name returns the display name bound to id.
func (r *Registry) Name(id ConnID) (string, bool) {
	name, ok := r.byID[id]
	return name, ok
}

// Names returns every bound display name in ascending order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	return len(r.byID)
}

func (r *Registry) taken(name string, by ConnID) bool {
	owner, ok := r.byName[name]
	return ok && owner != by
}
