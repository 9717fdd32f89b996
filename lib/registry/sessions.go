package registry

import (
	"sort"
	"time"

	"github.com/go-i2p/logger"
)

// Session is the live record of one established session, visible to the
// reporting surface for every scope the session traversed.
type Session struct {
	ID           string    // Session handle identifier
	User         string    // Requesting user
	ConnectionID string    // Leaf connection servicing the session
	RemoteAddr   string    // Client address as reported at connect time
	StartedAt    time.Time // When the session was established
}

// sessionRecord couples a Session with the scopes it is registered under
// and the closer Kill invokes.
type sessionRecord struct {
	session Session
	scopes  []string
	closer  func()
}

// Register records an established session against each of the given scopes.
// closer is invoked by Kill to force-disconnect the session; it must be safe
// to call multiple times.
func (r *Registry) Register(session Session, scopes []string, closer func()) {
	rec := &sessionRecord{session: session, scopes: scopes, closer: closer}

	r.recmu.Lock()
	r.records[session.ID] = rec
	for _, scopeID := range scopes {
		idx, ok := r.byScope[scopeID]
		if !ok {
			idx = make(map[string]*sessionRecord)
			r.byScope[scopeID] = idx
		}
		idx[session.ID] = rec
	}
	r.recmu.Unlock()

	log.WithFields(logger.Fields{
		"at":         "Registry.Register",
		"session":    session.ID,
		"user":       session.User,
		"connection": session.ConnectionID,
	}).Debug("session registered")
}

// Deregister removes a session record from every scope it was registered
// under. Unknown identifiers are ignored, which makes the close path
// idempotent.
func (r *Registry) Deregister(sessionID string) {
	r.recmu.Lock()
	rec, ok := r.records[sessionID]
	if ok {
		delete(r.records, sessionID)
		for _, scopeID := range rec.scopes {
			if idx, ok := r.byScope[scopeID]; ok {
				delete(idx, sessionID)
				if len(idx) == 0 {
					delete(r.byScope, scopeID)
				}
			}
		}
	}
	r.recmu.Unlock()

	if ok {
		log.WithFields(logger.Fields{
			"at":      "Registry.Deregister",
			"session": sessionID,
		}).Debug("session deregistered")
	}
}

// SessionsFor lists the live sessions registered under a scope, ordered by
// start time then identifier.
func (r *Registry) SessionsFor(scopeID string) []Session {
	r.recmu.RLock()
	idx := r.byScope[scopeID]
	out := make([]Session, 0, len(idx))
	for _, rec := range idx {
		out = append(out, rec.session)
	}
	r.recmu.RUnlock()

	sortSessions(out)
	return out
}

// Sessions lists every live session, ordered by start time then identifier.
func (r *Registry) Sessions() []Session {
	r.recmu.RLock()
	out := make([]Session, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.session)
	}
	r.recmu.RUnlock()

	sortSessions(out)
	return out
}

// Kill force-disconnects a live session by identifier. It reports whether
// the session was found; the disconnect itself runs through the session's
// own close path, so counters and records are released exactly as on a
// normal termination.
func (r *Registry) Kill(sessionID string) bool {
	r.recmu.RLock()
	rec, ok := r.records[sessionID]
	r.recmu.RUnlock()
	if !ok {
		return false
	}

	log.WithFields(logger.Fields{
		"at":      "Registry.Kill",
		"session": sessionID,
		"user":    rec.session.User,
	}).Info("forcing session disconnect")

	// The closer deregisters the record itself; invoking it under recmu
	// would deadlock.
	rec.closer()
	return true
}

func sortSessions(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
}
