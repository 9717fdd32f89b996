package dispatch

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"

	"github.com/conngate/conngate/lib/admission"
	"github.com/conngate/conngate/lib/metrics"
	"github.com/conngate/conngate/lib/registry"
)

// SessionHandle is one established session. It owns the raw session stream
// and the full reservation chain taken on the way to the leaf, and is the
// single place those resources are returned.
type SessionHandle struct {
	id           string
	user         string
	connectionID string
	startedAt    time.Time

	raw          RawSession
	reservations []*admission.Reservation
	scopes       []string
	registry     *registry.Registry
	metrics      *metrics.Collector

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// ID returns the session's unique identifier.
func (h *SessionHandle) ID() string {
	return h.id
}

// User returns the user the session belongs to.
func (h *SessionHandle) User() string {
	return h.user
}

// ConnectionID returns the identifier of the leaf connection servicing the
// session.
func (h *SessionHandle) ConnectionID() string {
	return h.connectionID
}

// StartedAt returns when the session was established.
func (h *SessionHandle) StartedAt() time.Time {
	return h.startedAt
}

// Done is closed once the session has fully closed and released its
// reservations.
func (h *SessionHandle) Done() <-chan struct{} {
	return h.closed
}

// Close terminates the session and releases everything it holds: the raw
// stream, every reservation in the chain, and the registry records. Only
// the first call does work; it is safe to call from the session owner, the
// raw-session watcher and a forced disconnect concurrently.
func (h *SessionHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.raw.Close()

		for _, res := range h.reservations {
			res.Release()
		}
		h.registry.Deregister(h.id)
		for _, scopeID := range h.scopes {
			h.metrics.SetActiveSessions(scopeID, h.registry.TotalFor(scopeID))
		}

		duration := time.Since(h.startedAt)
		h.metrics.ObserveSessionDuration(duration)
		close(h.closed)

		log.WithFields(logger.Fields{
			"at":         "SessionHandle.Close",
			"session":    h.id,
			"user":       h.user,
			"connection": h.connectionID,
			"duration":   duration.Round(time.Millisecond).String(),
		}).Info("session closed")
	})
	return h.closeErr
}

// watch closes the handle when the raw session ends on its own.
func (h *SessionHandle) watch() {
	select {
	case <-h.raw.Done():
		h.Close()
	case <-h.closed:
	}
}
