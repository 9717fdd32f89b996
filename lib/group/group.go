package group

import (
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Type distinguishes the two kinds of connection group.
type Type int

const (
	Organizational Type = iota // Hierarchy only, never dispatches
	Balancing                  // Dispatches requests to the least-loaded child
)

func (t Type) String() string {
	switch t {
	case Balancing:
		return "BALANCING"
	default:
		return "ORGANIZATIONAL"
	}
}

// ParseType parses the textual group type used by topology files and the
// management layer. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "ORGANIZATIONAL":
		return Organizational, nil
	case "BALANCING":
		return Balancing, nil
	default:
		return Organizational, oops.Errorf("unknown group type %q", s)
	}
}

// Scope identifies which kind of endpoint a set of limits applies to.
// Group and connection scopes resolve unset limits against independent
// defaults.
type Scope int

const (
	ScopeGroup Scope = iota
	ScopeConnection
)

func (s Scope) String() string {
	if s == ScopeConnection {
		return "connection"
	}
	return "group"
}

// ParseScope parses the textual scope kind used by the gateway entry point
// and the control API paths. Matching is case-insensitive.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(s) {
	case "group", "groups":
		return ScopeGroup, nil
	case "connection", "connections":
		return ScopeConnection, nil
	default:
		return ScopeGroup, oops.Errorf("unknown scope kind %q", s)
	}
}

// Group is one node of the connection hierarchy. Children are held as
// identifiers and resolved through the directory at dispatch time, so a
// group never becomes stale when the management layer replaces a child.
//
// The identifier and type are fixed at creation; limits and children may be
// updated concurrently with dispatch reads.
type Group struct {
	id  string
	typ Type

	mu               sync.RWMutex
	name             string
	limits           Limits
	childGroups      []string
	childConnections []string
}

// New creates a group with the given identifier, display name and type.
func New(id, name string, typ Type) *Group {
	return &Group{id: id, name: name, typ: typ}
}

// Identifier returns the unique identifier assigned by the management layer.
func (g *Group) Identifier() string {
	return g.id
}

// Type returns the group kind. It never changes after creation.
func (g *Group) Type() Type {
	return g.typ
}

// Scope reports that limits on this object apply at group scope.
func (g *Group) Scope() Scope {
	return ScopeGroup
}

// Name returns the display name.
func (g *Group) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// SetName updates the display name.
func (g *Group) SetName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
}

// ConcurrencyLimits returns the configured tri-state limit pair.
func (g *Group) ConcurrencyLimits() Limits {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.limits
}

// SetConcurrencyLimits replaces the configured limit pair.
func (g *Group) SetConcurrencyLimits(l Limits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = l
}

// ChildGroups returns the identifiers of nested child groups in configured
// order. The returned slice is a copy.
func (g *Group) ChildGroups() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.childGroups))
	copy(out, g.childGroups)
	return out
}

// ChildConnections returns the identifiers of leaf connections in configured
// order. The returned slice is a copy.
func (g *Group) ChildConnections() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.childConnections))
	copy(out, g.childConnections)
	return out
}

// AddChildGroup appends a nested group identifier.
func (g *Group) AddChildGroup(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.childGroups = append(g.childGroups, id)
}

// AddChildConnection appends a leaf connection identifier.
func (g *Group) AddChildConnection(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.childConnections = append(g.childConnections, id)
}

// Attributes returns the numeric limit attributes in their text form. Both
// entries are always present; an unset limit renders as the empty string.
func (g *Group) Attributes() map[string]string {
	return limitAttributes(g.ConcurrencyLimits())
}

// SetAttributes parses the numeric limit attributes from attrs. Malformed
// values are logged and treated as unset; valid updates are applied
// atomically as a pair.
func (g *Group) SetAttributes(attrs map[string]string) {
	g.SetConcurrencyLimits(parseLimitAttributes(attrs, g.id))
}
