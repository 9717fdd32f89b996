package gateway

import (
	"context"
	"errors"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/conngate/conngate/lib/directory"
	"github.com/conngate/conngate/lib/dispatch"
	"github.com/conngate/conngate/lib/group"
	"github.com/conngate/conngate/lib/metrics"
	"github.com/conngate/conngate/lib/registry"
)

// Sentinel errors callers branch on. Rejections carry their own taxonomy;
// these cover the conditions in front of admission.
var (
	// ErrNotFound means the identifier resolves to nothing in the directory.
	ErrNotFound = errors.New("no such group or connection")
	// ErrThrottled means the user exceeded the connect-attempt rate. No
	// reservation was taken.
	ErrThrottled = errors.New("connect attempt rate exceeded")
)

// Gateway is the daemon's entry point: one Connect call per incoming
// session request, plus the reporting surface the control API exposes.
type Gateway struct {
	directory  directory.Directory
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	metrics    *metrics.Collector
	throttle   *Throttle // nil when disabled
}

// New assembles a gateway. collector and throttle may be nil.
func New(dir directory.Directory, disp *dispatch.Dispatcher, reg *registry.Registry, collector *metrics.Collector, throttle *Throttle) *Gateway {
	return &Gateway{
		directory:  dir,
		dispatcher: disp,
		registry:   reg,
		metrics:    collector,
		throttle:   throttle,
	}
}

// Connect routes one session request. scope selects whether identifier
// names a group (dispatched through the balancing hierarchy) or a leaf
// connection (opened directly). Refusals come back as *admission.Rejection;
// ErrThrottled and ErrNotFound precede any admission.
func (g *Gateway) Connect(ctx context.Context, scope group.Scope, identifier, user string, info dispatch.ClientInfo) (*dispatch.SessionHandle, error) {
	if !g.throttle.Allow(user) {
		g.metrics.RecordThrottled()
		return nil, oops.Wrapf(ErrThrottled, "user %s", user)
	}

	switch scope {
	case group.ScopeConnection:
		conn, ok := g.directory.Connection(identifier)
		if !ok {
			return nil, oops.Wrapf(ErrNotFound, "connection %s", identifier)
		}
		return g.dispatcher.ConnectLeaf(ctx, conn, user, info)
	default:
		grp, ok := g.directory.Group(identifier)
		if !ok {
			return nil, oops.Wrapf(ErrNotFound, "group %s", identifier)
		}
		return g.dispatcher.Connect(ctx, grp, user, info)
	}
}

// ActiveSessionCount returns the live session total for a group or
// connection identifier. Best-effort read; see the registry contract.
func (g *Gateway) ActiveSessionCount(identifier string) int {
	return g.registry.TotalFor(identifier)
}

// UserSessionCount returns one user's live session count within a scope.
func (g *Gateway) UserSessionCount(identifier, user string) int {
	return g.registry.UserTotalFor(identifier, user)
}

// UserCounts returns the per-user live session counts within a scope.
func (g *Gateway) UserCounts(identifier string) map[string]int {
	return g.registry.UserCounts(identifier)
}

// SessionsFor lists the live sessions registered under a scope identifier.
func (g *Gateway) SessionsFor(identifier string) []registry.Session {
	return g.registry.SessionsFor(identifier)
}

// Sessions lists every live session.
func (g *Gateway) Sessions() []registry.Session {
	return g.registry.Sessions()
}

// Stats returns the registry's activity snapshot for the status surface.
func (g *Gateway) Stats() registry.Stats {
	return g.registry.Stats()
}

// Kill force-closes a live session by identifier. Returns false when no
// such session exists, which includes a session that closed on its own a
// moment earlier.
func (g *Gateway) Kill(sessionID string) bool {
	killed := g.registry.Kill(sessionID)
	if killed {
		log.WithFields(logger.Fields{
			"at":      "Gateway.Kill",
			"session": sessionID,
		}).Info("session force-closed")
	}
	return killed
}

// DrainSessions closes every live session. The daemon runs this during
// shutdown so reservations release while the control surface is still up.
// Returns how many sessions were closed.
func (g *Gateway) DrainSessions() int {
	sessions := g.registry.Sessions()
	for _, s := range sessions {
		g.registry.Kill(s.ID)
	}
	if len(sessions) > 0 {
		log.WithField("count", len(sessions)).Info("drained live sessions")
	}
	return len(sessions)
}

// Close stops the throttle janitor. Live sessions are left to their owners;
// use DrainSessions to end them.
func (g *Gateway) Close() error {
	g.throttle.Stop()
	return nil
}
