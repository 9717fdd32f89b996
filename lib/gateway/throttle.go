package gateway

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"golang.org/x/time/rate"
)

// Throttle rate-limits connect attempts per user with a token bucket each.
// It sits in front of admission: a throttled attempt never reaches the
// registry, so floods cannot churn reservation state.
type Throttle struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu    sync.Mutex
	users map[string]*userBucket

	stopOnce sync.Once
	stop     chan struct{}
}

// userBucket pairs a limiter with its last activity for idle eviction.
type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle creates a throttle allowing attemptsPerMinute sustained
// attempts per user with the given burst. Buckets idle longer than idle are
// dropped by a janitor goroutine; Stop ends it.
func NewThrottle(attemptsPerMinute, burst int, idle time.Duration) *Throttle {
	t := &Throttle{
		limit: rate.Limit(float64(attemptsPerMinute) / 60.0),
		burst: burst,
		idle:  idle,
		users: make(map[string]*userBucket),
		stop:  make(chan struct{}),
	}
	go t.janitor()
	return t
}

// Allow reports whether user may make a connect attempt now. A nil throttle
// allows everything.
func (t *Throttle) Allow(user string) bool {
	if t == nil {
		return true
	}

	t.mu.Lock()
	b, ok := t.users[user]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.users[user] = b
	}
	b.lastSeen = time.Now()
	t.mu.Unlock()

	allowed := b.limiter.Allow()
	if !allowed {
		log.WithFields(logger.Fields{
			"at":     "Throttle.Allow",
			"reason": "rate_exceeded",
			"user":   user,
		}).Warn("connect attempt throttled")
	}
	return allowed
}

// Stop ends the janitor goroutine. Safe to call more than once.
func (t *Throttle) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() { close(t.stop) })
}

// janitor drops buckets that have not been touched within the idle window.
// Sweeping at half the window bounds how stale a dead entry can get.
func (t *Throttle) janitor() {
	ticker := time.NewTicker(t.idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.evictIdle(time.Now())
		case <-t.stop:
			return
		}
	}
}

func (t *Throttle) evictIdle(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for user, b := range t.users {
		if now.Sub(b.lastSeen) > t.idle {
			delete(t.users, user)
		}
	}
}

// trackedUsers returns how many buckets are live, for tests and stats.
func (t *Throttle) trackedUsers() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}
