package group

import "sync"

// Connection is a leaf endpoint: one remote host a session can be opened
// against. Its parameters are opaque to the core and handed verbatim to the
// tunnel-establishment collaborator.
type Connection struct {
	id string

	mu         sync.RWMutex
	name       string
	limits     Limits
	parameters map[string]string
}

// NewConnection creates a leaf connection with the given identifier and
// display name.
func NewConnection(id, name string) *Connection {
	return &Connection{
		id:         id,
		name:       name,
		parameters: make(map[string]string),
	}
}

// Identifier returns the unique identifier assigned by the management layer.
func (c *Connection) Identifier() string {
	return c.id
}

// Scope reports that limits on this object apply at connection scope.
func (c *Connection) Scope() Scope {
	return ScopeConnection
}

// Name returns the display name.
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName updates the display name.
func (c *Connection) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

// ConcurrencyLimits returns the connection's own tri-state limit pair.
func (c *Connection) ConcurrencyLimits() Limits {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.limits
}

// SetConcurrencyLimits replaces the connection's limit pair.
func (c *Connection) SetConcurrencyLimits(l Limits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits = l
}

// Parameters returns a copy of the opaque endpoint parameters.
func (c *Connection) Parameters() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.parameters))
	for k, v := range c.parameters {
		out[k] = v
	}
	return out
}

// Parameter returns a single endpoint parameter, or the empty string when
// absent.
func (c *Connection) Parameter(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parameters[key]
}

// SetParameter stores one endpoint parameter.
func (c *Connection) SetParameter(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parameters[key] = value
}

// SetParameters replaces all endpoint parameters.
func (c *Connection) SetParameters(params map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parameters = make(map[string]string, len(params))
	for k, v := range params {
		c.parameters[k] = v
	}
}

// Attributes returns the numeric limit attributes in their text form.
func (c *Connection) Attributes() map[string]string {
	return limitAttributes(c.ConcurrencyLimits())
}

// SetAttributes parses the numeric limit attributes from attrs, logging and
// ignoring malformed values.
func (c *Connection) SetAttributes(attrs map[string]string) {
	c.SetConcurrencyLimits(parseLimitAttributes(attrs, c.id))
}
