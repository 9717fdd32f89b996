package admission

import (
	"sync/atomic"

	"github.com/go-i2p/logger"

	"github.com/conngate/conngate/lib/group"
	"github.com/conngate/conngate/lib/registry"
)

// Target is anything sessions can be admitted against: a group or a leaf
// connection. Both carry an identifier, a scope kind and a tri-state limit
// pair.
type Target interface {
	Identifier() string
	Scope() group.Scope
	ConcurrencyLimits() group.Limits
}

// Controller admits connection requests against per-scope limits. All
// counter state lives in the registry; the controller contributes limit
// resolution and the rejection taxonomy.
type Controller struct {
	resolver *Resolver
	registry *registry.Registry
}

// NewController creates a controller enforcing limits through reg.
func NewController(resolver *Resolver, reg *registry.Registry) *Controller {
	return &Controller{resolver: resolver, registry: reg}
}

// TryAdmit attempts to take one session slot on target for user. On success
// it returns a Reservation the caller owns; the caller must release it
// exactly once (directly, or by handing it to a session handle). On refusal
// it returns a *Rejection with ReasonGroupFull or ReasonUserFull.
//
// The limit check and counter increment are atomic per scope: two racing
// requests for the last slot see consistent counts and exactly one wins.
func (c *Controller) TryAdmit(target Target, user string) (*Reservation, error) {
	scopeID := target.Identifier()
	maxTotal, maxPerUser := c.resolver.Resolve(target.ConcurrencyLimits(), target.Scope())

	switch c.registry.TryAcquire(scopeID, user, maxTotal, maxPerUser) {
	case registry.Acquired:
		log.WithFields(logger.Fields{
			"at":    "Controller.TryAdmit",
			"scope": scopeID,
			"kind":  target.Scope().String(),
			"user":  user,
		}).Debug("session slot reserved")
		return &Reservation{scopeID: scopeID, user: user, registry: c.registry}, nil

	case registry.TotalExceeded:
		log.WithFields(logger.Fields{
			"at":        "Controller.TryAdmit",
			"reason":    string(ReasonGroupFull),
			"scope":     scopeID,
			"kind":      target.Scope().String(),
			"user":      user,
			"max_total": maxTotal,
		}).Debug("scope at total session limit")
		return nil, NewRejection(ReasonGroupFull, scopeID)

	default:
		log.WithFields(logger.Fields{
			"at":           "Controller.TryAdmit",
			"reason":       string(ReasonUserFull),
			"scope":        scopeID,
			"kind":         target.Scope().String(),
			"user":         user,
			"max_per_user": maxPerUser,
		}).Debug("user at per-user session limit")
		return nil, NewRejection(ReasonUserFull, scopeID)
	}
}

// Reservation is one held session slot in one scope for one user. It is
// created only by TryAdmit and returned to the registry by Release.
type Reservation struct {
	scopeID  string
	user     string
	registry *registry.Registry
	released atomic.Bool
}

// ScopeID returns the identifier of the scope the slot was taken in.
func (r *Reservation) ScopeID() string {
	return r.scopeID
}

// User returns the user the slot is held for.
func (r *Reservation) User() string {
	return r.user
}

// Release returns the slot to the scope. Only the first call decrements the
// counters; later calls and calls on a nil reservation are no-ops, so
// cleanup paths can release unconditionally.
func (r *Reservation) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	r.registry.Release(r.scopeID, r.user)
}
