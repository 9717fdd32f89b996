package directory

import (
	"sort"
	"sync"

	"github.com/conngate/conngate/lib/group"
)

// Directory resolves identifiers to configuration objects. The core only
// reads from it; writes happen in the management layer behind it.
// Implementations must be safe for concurrent use.
type Directory interface {
	// Group returns the group with the given identifier.
	Group(id string) (*group.Group, bool)
	// Connection returns the leaf connection with the given identifier.
	Connection(id string) (*group.Connection, bool)
	// GroupIdentifiers lists every group identifier, sorted.
	GroupIdentifiers() []string
	// ConnectionIdentifiers lists every connection identifier, sorted.
	ConnectionIdentifiers() []string
	// GroupIdentifiersWithin lists the nested groups of a parent group.
	GroupIdentifiersWithin(parentID string) []string
	// ConnectionIdentifiersWithin lists the leaf connections of a parent
	// group.
	ConnectionIdentifiersWithin(parentID string) []string
}

// Memory is an in-memory Directory. The zero value is not usable; call
// NewMemory.
type Memory struct {
	mu          sync.RWMutex
	groups      map[string]*group.Group
	connections map[string]*group.Connection
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		groups:      make(map[string]*group.Group),
		connections: make(map[string]*group.Connection),
	}
}

// PutGroup adds or replaces a group.
func (m *Memory) PutGroup(g *group.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.Identifier()] = g
}

// PutConnection adds or replaces a leaf connection.
func (m *Memory) PutConnection(c *group.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.Identifier()] = c
}

// RemoveGroup deletes a group by identifier.
func (m *Memory) RemoveGroup(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, id)
}

// RemoveConnection deletes a connection by identifier.
func (m *Memory) RemoveConnection(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, id)
}

// ReplaceWith swaps in the contents of another directory wholesale.
// Lookups racing the swap see either the old or the new topology, never a
// mix. Established sessions are unaffected; only future dispatches resolve
// against the new entries.
func (m *Memory) ReplaceWith(other *Memory) {
	other.mu.RLock()
	groups := make(map[string]*group.Group, len(other.groups))
	for id, g := range other.groups {
		groups[id] = g
	}
	connections := make(map[string]*group.Connection, len(other.connections))
	for id, c := range other.connections {
		connections[id] = c
	}
	other.mu.RUnlock()

	m.mu.Lock()
	m.groups = groups
	m.connections = connections
	m.mu.Unlock()
}

// Group implements Directory.
func (m *Memory) Group(id string) (*group.Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	return g, ok
}

// Connection implements Directory.
func (m *Memory) Connection(id string) (*group.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	return c, ok
}

// GroupIdentifiers implements Directory.
func (m *Memory) GroupIdentifiers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.groups))
	for id := range m.groups {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ConnectionIdentifiers implements Directory.
func (m *Memory) ConnectionIdentifiers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.connections))
	for id := range m.connections {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GroupIdentifiersWithin implements Directory. Unknown parents list
// nothing.
func (m *Memory) GroupIdentifiersWithin(parentID string) []string {
	if g, ok := m.Group(parentID); ok {
		return g.ChildGroups()
	}
	return nil
}

// ConnectionIdentifiersWithin implements Directory. Unknown parents list
// nothing.
func (m *Memory) ConnectionIdentifiersWithin(parentID string) []string {
	if g, ok := m.Group(parentID); ok {
		return g.ChildConnections()
	}
	return nil
}
