package dispatch

import (
	"context"

	"github.com/conngate/conngate/lib/group"
)

// ClientInfo carries request metadata the core forwards to the tunnel
// collaborator without interpreting it.
type ClientInfo struct {
	RemoteAddr string // Client network address
	Program    string // Client program name
	Timezone   string // Client timezone, IANA name
}

// RawSession is the established session stream as seen by the lifecycle
// tracker. The wire protocol behind it is out of scope.
type RawSession interface {
	// Close terminates the session. It must tolerate repeated calls.
	Close() error
	// Done is closed when the underlying stream terminates, whether by
	// Close, by the remote end, or by transport failure.
	Done() <-chan struct{}
}

// Opener establishes the session stream against a leaf connection's
// endpoint. Implementations block until the session is usable or ctx ends,
// and must not retain conn past the call.
type Opener interface {
	Open(ctx context.Context, conn *group.Connection, user string, info ClientInfo) (RawSession, error)
}
