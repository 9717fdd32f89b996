package admission

import "github.com/conngate/conngate/lib/group"

// Defaults carries the process-wide fallback limits applied when a scope
// leaves a limit unset. Zero means unbounded, matching the resolved form.
// Group and connection scopes fall back independently.
type Defaults struct {
	// GroupMaxSessions bounds total sessions in a group with no explicit limit.
	GroupMaxSessions int
	// GroupMaxSessionsPerUser bounds one user's sessions in such a group.
	GroupMaxSessionsPerUser int
	// ConnectionMaxSessions bounds total sessions on a connection with no
	// explicit limit.
	ConnectionMaxSessions int
	// ConnectionMaxSessionsPerUser bounds one user's sessions on such a
	// connection.
	ConnectionMaxSessionsPerUser int
}

// Resolver collapses tri-state limits into enforceable counts. It is a pure
// function of the limits plus the defaults injected at construction; nothing
// is read from ambient state.
type Resolver struct {
	defaults Defaults
}

// NewResolver creates a resolver with the given fallback limits.
func NewResolver(defaults Defaults) *Resolver {
	return &Resolver{defaults: defaults}
}

// Resolve returns the enforceable (maxTotal, maxPerUser) pair for a scope.
// In the returned form zero means unbounded.
func (r *Resolver) Resolve(limits group.Limits, scope group.Scope) (maxTotal, maxPerUser int) {
	if scope == group.ScopeConnection {
		return limits.MaxSessions.Resolve(r.defaults.ConnectionMaxSessions),
			limits.MaxSessionsPerUser.Resolve(r.defaults.ConnectionMaxSessionsPerUser)
	}
	return limits.MaxSessions.Resolve(r.defaults.GroupMaxSessions),
		limits.MaxSessionsPerUser.Resolve(r.defaults.GroupMaxSessionsPerUser)
}
