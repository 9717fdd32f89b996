package registry

import (
	"sync"
	"sync/atomic"

	"github.com/go-i2p/logger"
)

// AcquireResult reports the outcome of a conditional slot acquisition.
type AcquireResult int

const (
	Acquired      AcquireResult = iota // Slot taken, counters incremented
	TotalExceeded                      // Scope is at its total session limit
	UserExceeded                       // User is at their per-user limit
)

func (r AcquireResult) String() string {
	switch r {
	case Acquired:
		return "acquired"
	case TotalExceeded:
		return "total_exceeded"
	default:
		return "user_exceeded"
	}
}

// Registry tracks active session counts per scope and the live session
// records of established sessions.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]*scopeState

	recmu   sync.RWMutex
	records map[string]*sessionRecord            // by session identifier
	byScope map[string]map[string]*sessionRecord // scope → session id → record

	totalAcquired atomic.Uint64
	totalRejected atomic.Uint64
	totalReleased atomic.Uint64
}

// scopeState holds the counters for one scope. Its mutex makes the
// check-and-increment in TryAcquire atomic per scope while leaving
// unrelated scopes free to proceed. States are created lazily and kept for
// the process lifetime; the set of scopes is bounded by the topology.
type scopeState struct {
	mu     sync.Mutex
	total  int
	byUser map[string]int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		scopes:  make(map[string]*scopeState),
		records: make(map[string]*sessionRecord),
		byScope: make(map[string]map[string]*sessionRecord),
	}
}

// scope returns the state for scopeID, creating it on first use.
func (r *Registry) scope(scopeID string) *scopeState {
	r.mu.RLock()
	s, ok := r.scopes[scopeID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.scopes[scopeID]; ok {
		return s
	}
	s = &scopeState{byUser: make(map[string]int)}
	r.scopes[scopeID] = s
	return s
}

// TryAcquire attempts to take one session slot in scopeID for user. Limits
// are in resolved form: zero means unbounded. The comparison against both
// limits and the increment of both counters happen atomically with respect
// to other calls for the same scope. The total limit is checked before the
// per-user limit.
func (r *Registry) TryAcquire(scopeID, user string, maxTotal, maxPerUser int) AcquireResult {
	s := r.scope(scopeID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if maxTotal > 0 && s.total >= maxTotal {
		r.totalRejected.Add(1)
		return TotalExceeded
	}
	if maxPerUser > 0 && s.byUser[user] >= maxPerUser {
		r.totalRejected.Add(1)
		return UserExceeded
	}

	s.total++
	s.byUser[user]++
	r.totalAcquired.Add(1)
	return Acquired
}

// Release returns one slot previously taken by TryAcquire. Releasing a slot
// that was never acquired indicates a caller bug; the registry logs it and
// refuses to drive a counter negative.
func (r *Registry) Release(scopeID, user string) {
	s := r.scope(scopeID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total <= 0 || s.byUser[user] <= 0 {
		log.WithFields(logger.Fields{
			"at":     "Registry.Release",
			"reason": "release_without_acquire",
			"scope":  scopeID,
			"user":   user,
		}).Error("refusing to decrement counter below zero")
		return
	}

	s.total--
	if s.byUser[user] == 1 {
		delete(s.byUser, user)
	} else {
		s.byUser[user]--
	}
	r.totalReleased.Add(1)
}

// TotalFor returns the current total active count for a scope. Zero for
// scopes never seen.
func (r *Registry) TotalFor(scopeID string) int {
	r.mu.RLock()
	s, ok := r.scopes[scopeID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// UserTotalFor returns user's current active count within a scope.
func (r *Registry) UserTotalFor(scopeID, user string) int {
	r.mu.RLock()
	s, ok := r.scopes[scopeID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byUser[user]
}

// UserCounts returns the per-user breakdown for a scope. The returned map
// is a copy.
func (r *Registry) UserCounts(scopeID string) map[string]int {
	r.mu.RLock()
	s, ok := r.scopes[scopeID]
	r.mu.RUnlock()
	if !ok {
		return map[string]int{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.byUser))
	for u, n := range s.byUser {
		out[u] = n
	}
	return out
}

// Stats is a point-in-time summary of registry activity.
type Stats struct {
	LiveSessions  int    // Established sessions currently registered
	TrackedScopes int    // Scopes with counter state
	TotalAcquired uint64 // Slots handed out since start
	TotalRejected uint64 // Acquisitions refused since start
	TotalReleased uint64 // Slots returned since start
}

// Stats returns a snapshot of registry activity for the reporting surface.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	scopes := len(r.scopes)
	r.mu.RUnlock()

	r.recmu.RLock()
	live := len(r.records)
	r.recmu.RUnlock()

	return Stats{
		LiveSessions:  live,
		TrackedScopes: scopes,
		TotalAcquired: r.totalAcquired.Load(),
		TotalRejected: r.totalRejected.Load(),
		TotalReleased: r.totalReleased.Load(),
	}
}
