package signals

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// defaultDrainTimeout is the maximum time to wait for drain handlers to
// complete before interrupt handlers run anyway.
const defaultDrainTimeout = 30 * time.Second

var (
	drainMu       sync.RWMutex
	drainHandlers []Handler
	drainTimeout  = defaultDrainTimeout
)

// RegisterDrainHandler registers a handler that runs BEFORE the interrupt
// handlers during shutdown. This is where live sessions get closed, so their
// reservations release and counters settle while listeners are still up.
//
// Drain handlers run in registration order and each is protected against
// panics. All drain handlers must complete (or the drain timeout expire)
// before interrupt handlers are invoked.
//
// Nil handlers are silently ignored.
func RegisterDrainHandler(f Handler) {
	if f == nil {
		return
	}
	drainMu.Lock()
	defer drainMu.Unlock()
	drainHandlers = append(drainHandlers, f)
}

// SetDrainTimeout configures the maximum time to wait for drain handlers.
// Zero or negative restores the 30 second default.
func SetDrainTimeout(timeout time.Duration) {
	drainMu.Lock()
	defer drainMu.Unlock()
	if timeout <= 0 {
		drainTimeout = defaultDrainTimeout
	} else {
		drainTimeout = timeout
	}
}

// handleDrain runs all registered drain handlers with a timeout.
// Returns true if every handler completed within the timeout.
func handleDrain() bool {
	drainMu.RLock()
	snapshot := make([]Handler, len(drainHandlers))
	copy(snapshot, drainHandlers)
	timeout := drainTimeout
	drainMu.RUnlock()

	if len(snapshot) == 0 {
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, h := range snapshot {
			func() {
				defer func() {
					if r := recover(); r != nil {
						fmt.Fprintf(os.Stderr, "signals: panic in drain handler: %v\n", r)
					}
				}()
				h()
			}()
		}
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		fmt.Fprintf(os.Stderr, "signals: drain handlers timed out after %s\n", timeout)
		return false
	}
}
