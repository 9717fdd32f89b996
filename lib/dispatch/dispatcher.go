package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/go-i2p/logger"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/conngate/conngate/lib/admission"
	"github.com/conngate/conngate/lib/directory"
	"github.com/conngate/conngate/lib/group"
	"github.com/conngate/conngate/lib/metrics"
	"github.com/conngate/conngate/lib/registry"
)

// Dispatcher routes connection requests through the group hierarchy to a
// concrete endpoint, enforcing limits at every hop.
type Dispatcher struct {
	directory directory.Directory
	admission *admission.Controller
	registry  *registry.Registry
	opener    Opener
	metrics   *metrics.Collector
}

// NewDispatcher wires the dispatcher's collaborators. collector may be nil
// to disable metrics.
func NewDispatcher(dir directory.Directory, ctrl *admission.Controller, reg *registry.Registry, opener Opener, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		directory: dir,
		admission: ctrl,
		registry:  reg,
		opener:    opener,
		metrics:   collector,
	}
}

// dispatchState accompanies one Connect call through the recursion.
type dispatchState struct {
	visited map[string]struct{} // group identifiers seen on this dispatch
	tried   int                 // candidates attempted across all levels
}

// Connect admits the request against g and, for balancing groups, routes it
// to the least-loaded available child. On success the returned handle owns
// the session; the caller releases it via Close. On refusal the error is a
// *admission.Rejection.
func (d *Dispatcher) Connect(ctx context.Context, g *group.Group, user string, info ClientInfo) (*SessionHandle, error) {
	st := &dispatchState{visited: make(map[string]struct{})}

	handle, err := d.connect(ctx, g, user, info, st, nil)
	if st.tried > 0 {
		d.metrics.ObserveCandidatesTried(st.tried)
	}
	if err != nil {
		if rej, ok := admission.AsRejection(err); ok {
			d.metrics.RecordRejection(string(rej.Reason))
		}
		return nil, err
	}
	return handle, nil
}

// ConnectLeaf admits and opens a session directly against a leaf
// connection, outside any group. An establishment failure releases the
// reservation and is returned as an UPSTREAM_FAILURE rejection wrapping the
// cause.
func (d *Dispatcher) ConnectLeaf(ctx context.Context, conn *group.Connection, user string, info ClientInfo) (*SessionHandle, error) {
	handle, err := d.openLeaf(ctx, conn, user, info, nil)
	if err != nil {
		if rej, ok := admission.AsRejection(err); ok {
			d.metrics.RecordRejection(string(rej.Reason))
		}
		return nil, err
	}
	return handle, nil
}

// connect is one level of the dispatch recursion. ancestors holds the
// reservations taken by enclosing groups; this frame releases only the
// reservation it takes itself, except on success, where the complete chain
// transfers into the returned handle.
func (d *Dispatcher) connect(ctx context.Context, g *group.Group, user string, info ClientInfo, st *dispatchState, ancestors []*admission.Reservation) (*SessionHandle, error) {
	id := g.Identifier()

	if g.Type() != group.Balancing {
		log.WithFields(logger.Fields{
			"at":     "Dispatcher.connect",
			"reason": string(admission.ReasonUnsupportedOperation),
			"group":  id,
		}).Debug("organizational group cannot service connection requests")
		return nil, admission.NewRejection(admission.ReasonUnsupportedOperation, id)
	}

	if _, seen := st.visited[id]; seen {
		log.WithFields(logger.Fields{
			"at":     "Dispatcher.connect",
			"reason": string(admission.ReasonInvalidConfiguration),
			"group":  id,
		}).Warn("group hierarchy contains a cycle")
		return nil, admission.ConfigRejection(id, oops.Errorf("group %q repeats in its own hierarchy", id))
	}
	st.visited[id] = struct{}{}

	res, err := d.admission.TryAdmit(g, user)
	if err != nil {
		return nil, err
	}
	d.metrics.RecordAdmission("group")

	chain := appendReservation(ancestors, res)

	for _, cand := range d.rankCandidates(g) {
		select {
		case <-ctx.Done():
			res.Release()
			return nil, oops.Wrapf(ctx.Err(), "dispatch abandoned in group %s", id)
		default:
		}

		handle, err := d.tryCandidate(ctx, cand, user, info, st, chain)
		if err == nil {
			return handle, nil
		}
		if rej, ok := admission.AsRejection(err); ok {
			if rej.Reason == admission.ReasonInvalidConfiguration {
				res.Release()
				return nil, err
			}
			continue
		}
		// Not a rejection: cancellation or a collaborator contract breach.
		// Abandon the dispatch rather than hammer the remaining children.
		res.Release()
		return nil, err
	}

	res.Release()
	log.WithFields(logger.Fields{
		"at":     "Dispatcher.connect",
		"reason": string(admission.ReasonNoAvailableChild),
		"group":  id,
		"user":   user,
	}).Debug("every candidate child refused or failed")
	return nil, admission.NewRejection(admission.ReasonNoAvailableChild, id)
}

// candidate is one dispatch option within a balancing group, ranked by the
// load snapshot taken on entry.
type candidate struct {
	connection bool
	id         string
	load       int
}

// rankCandidates snapshots the loads of g's children and orders them
// ascending. The sort is stable, so equal loads keep configured order:
// leaf connections first, nested groups after.
func (d *Dispatcher) rankCandidates(g *group.Group) []candidate {
	conns := g.ChildConnections()
	groups := g.ChildGroups()

	out := make([]candidate, 0, len(conns)+len(groups))
	for _, cid := range conns {
		out = append(out, candidate{connection: true, id: cid, load: d.registry.TotalFor(cid)})
	}
	for _, gid := range groups {
		out = append(out, candidate{id: gid, load: d.registry.TotalFor(gid)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].load < out[j].load
	})
	return out
}

// tryCandidate attempts one ranked child. A child identifier the directory
// cannot resolve is skipped like a saturated candidate; the management
// layer may be mid-update.
func (d *Dispatcher) tryCandidate(ctx context.Context, cand candidate, user string, info ClientInfo, st *dispatchState, chain []*admission.Reservation) (*SessionHandle, error) {
	if cand.connection {
		conn, ok := d.directory.Connection(cand.id)
		if !ok {
			log.WithFields(logger.Fields{
				"at":         "Dispatcher.tryCandidate",
				"reason":     "dangling_child",
				"connection": cand.id,
			}).Warn("skipping child connection missing from directory")
			return nil, admission.NewRejection(admission.ReasonNoAvailableChild, cand.id)
		}
		st.tried++
		return d.openLeaf(ctx, conn, user, info, chain)
	}

	child, ok := d.directory.Group(cand.id)
	if !ok {
		log.WithFields(logger.Fields{
			"at":     "Dispatcher.tryCandidate",
			"reason": "dangling_child",
			"group":  cand.id,
		}).Warn("skipping child group missing from directory")
		return nil, admission.NewRejection(admission.ReasonNoAvailableChild, cand.id)
	}
	st.tried++
	return d.connect(ctx, child, user, info, st, chain)
}

// openLeaf admits the request on the leaf connection, opens the session
// stream and binds everything into a handle. An establishment failure
// releases the leaf reservation; ancestor reservations stay with their own
// frames.
func (d *Dispatcher) openLeaf(ctx context.Context, conn *group.Connection, user string, info ClientInfo, ancestors []*admission.Reservation) (*SessionHandle, error) {
	res, err := d.admission.TryAdmit(conn, user)
	if err != nil {
		return nil, err
	}
	d.metrics.RecordAdmission("connection")

	raw, err := d.opener.Open(ctx, conn, user, info)
	if err != nil {
		res.Release()
		log.WithError(err).WithFields(logger.Fields{
			"at":         "Dispatcher.openLeaf",
			"reason":     string(admission.ReasonUpstreamFailure),
			"connection": conn.Identifier(),
			"user":       user,
		}).Error("tunnel establishment failed")
		return nil, admission.UpstreamRejection(conn.Identifier(), err)
	}

	return d.establish(conn, user, info, raw, appendReservation(ancestors, res)), nil
}

// establish binds an opened raw session and its reservation chain into a
// live, registered SessionHandle.
func (d *Dispatcher) establish(conn *group.Connection, user string, info ClientInfo, raw RawSession, chain []*admission.Reservation) *SessionHandle {
	h := &SessionHandle{
		id:           uuid.NewString(),
		user:         user,
		connectionID: conn.Identifier(),
		startedAt:    time.Now(),
		raw:          raw,
		reservations: chain,
		registry:     d.registry,
		metrics:      d.metrics,
		closed:       make(chan struct{}),
	}

	h.scopes = make([]string, len(chain))
	for i, res := range chain {
		h.scopes[i] = res.ScopeID()
	}

	d.registry.Register(registry.Session{
		ID:           h.id,
		User:         user,
		ConnectionID: conn.Identifier(),
		RemoteAddr:   info.RemoteAddr,
		StartedAt:    h.startedAt,
	}, h.scopes, func() { _ = h.Close() })

	for _, scopeID := range h.scopes {
		d.metrics.SetActiveSessions(scopeID, d.registry.TotalFor(scopeID))
	}

	go h.watch()

	log.WithFields(logger.Fields{
		"at":         "Dispatcher.establish",
		"session":    h.id,
		"user":       user,
		"connection": conn.Identifier(),
		"hops":       len(chain),
	}).Info("session established")
	return h
}

// appendReservation copies the chain before extending it. Sibling candidates
// extend the same ancestor chain, so sharing the backing array would let one
// branch overwrite another's tail.
func appendReservation(ancestors []*admission.Reservation, res *admission.Reservation) []*admission.Reservation {
	chain := make([]*admission.Reservation, len(ancestors)+1)
	copy(chain, ancestors)
	chain[len(ancestors)] = res
	return chain
}
