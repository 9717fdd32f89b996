package tunnel

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/conngate/conngate/lib/dispatch"
	"github.com/conngate/conngate/lib/group"
)

var log = logger.GetGoI2PLogger()

// Connection parameters understood by the loopback opener. Anything else in
// the parameter map is ignored, as a real transport would ignore parameters
// meant for another one.
const (
	// DelayParameter holds a Go duration string; establishment sleeps that
	// long first, honoring the caller's context.
	DelayParameter = "loopback-delay"
	// RefuseParameter makes establishment fail when set to any non-empty
	// value.
	RefuseParameter = "loopback-refuse"
)

// Loopback opens sessions that never leave the process. The zero value is
// ready to use.
type Loopback struct{}

// NewLoopback returns a loopback opener.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Open establishes an in-process echo session against conn. It blocks for
// the connection's configured delay, if any, and fails when the connection
// carries the refuse parameter.
func (l *Loopback) Open(ctx context.Context, conn *group.Connection, user string, info dispatch.ClientInfo) (dispatch.RawSession, error) {
	if reason := conn.Parameter(RefuseParameter); reason != "" {
		return nil, oops.Errorf("loopback endpoint %s refuses sessions: %s", conn.Identifier(), reason)
	}

	if raw := conn.Parameter(DelayParameter); raw != "" {
		delay, err := time.ParseDuration(raw)
		if err != nil {
			return nil, oops.Wrapf(err, "connection %s: bad %s value %q", conn.Identifier(), DelayParameter, raw)
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, oops.Wrapf(ctx.Err(), "establishing loopback session on %s", conn.Identifier())
		}
	}

	client, server := net.Pipe()
	s := &echoSession{
		client: client,
		server: server,
		done:   make(chan struct{}),
	}
	go s.serve()

	log.WithFields(logger.Fields{
		"at":         "Loopback.Open",
		"connection": conn.Identifier(),
		"user":       user,
		"remote":     info.RemoteAddr,
	}).Debug("loopback session established")
	return s, nil
}

// echoSession is one live loopback session. The server side copies every
// byte it reads back to the writer, so the client observes an echo until
// either side closes.
type echoSession struct {
	client net.Conn
	server net.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// serve pumps the echo until the stream ends, then marks the session done.
func (s *echoSession) serve() {
	_, err := io.Copy(s.server, s.server)
	if err != nil && err != io.ErrClosedPipe {
		log.WithError(err).WithFields(logger.Fields{
			"at": "echoSession.serve",
		}).Debug("loopback echo ended")
	}
	s.shutdown()
}

func (s *echoSession) shutdown() {
	s.closeOnce.Do(func() {
		s.client.Close()
		s.server.Close()
		close(s.done)
	})
}

// Close tears the session down. Safe to call more than once and concurrently
// with the echo ending on its own.
func (s *echoSession) Close() error {
	s.shutdown()
	return nil
}

// Done is closed once the session has terminated, whichever end caused it.
func (s *echoSession) Done() <-chan struct{} {
	return s.done
}

// Client returns the caller-facing end of the pipe. The demo mode drives
// the session through it.
func (s *echoSession) Client() net.Conn {
	return s.client
}
