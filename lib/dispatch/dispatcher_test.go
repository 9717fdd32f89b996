package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conngate/conngate/lib/admission"
	"github.com/conngate/conngate/lib/directory"
	"github.com/conngate/conngate/lib/group"
	"github.com/conngate/conngate/lib/registry"
)

// fakeSession implements RawSession for tests.
type fakeSession struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
	return nil
}

func (s *fakeSession) Done() <-chan struct{} {
	return s.done
}

// terminate simulates the remote end dropping the stream.
func (s *fakeSession) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// fakeOpener implements Opener with scriptable per-connection failures.
type fakeOpener struct {
	mu       sync.Mutex
	failFor  map[string]error
	opened   []string
	sessions map[string]*fakeSession
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		failFor:  make(map[string]error),
		sessions: make(map[string]*fakeSession),
	}
}

func (o *fakeOpener) Open(_ context.Context, conn *group.Connection, _ string, _ ClientInfo) (RawSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failFor[conn.Identifier()]; err != nil {
		return nil, err
	}
	s := newFakeSession()
	o.opened = append(o.opened, conn.Identifier())
	o.sessions[conn.Identifier()] = s
	return s, nil
}

func (o *fakeOpener) openOrder() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.opened))
	copy(out, o.opened)
	return out
}

// fixture bundles a dispatcher with its collaborators for tests.
type fixture struct {
	dir    *directory.Memory
	reg    *registry.Registry
	opener *fakeOpener
	disp   *Dispatcher
}

func newFixture(defaults admission.Defaults) *fixture {
	dir := directory.NewMemory()
	reg := registry.New()
	opener := newFakeOpener()
	ctrl := admission.NewController(admission.NewResolver(defaults), reg)
	return &fixture{
		dir:    dir,
		reg:    reg,
		opener: opener,
		disp:   NewDispatcher(dir, ctrl, reg, opener, nil),
	}
}

func (f *fixture) addConnection(id string, limits group.Limits) *group.Connection {
	c := group.NewConnection(id, id)
	c.SetConcurrencyLimits(limits)
	f.dir.PutConnection(c)
	return c
}

func (f *fixture) addBalancing(id string, limits group.Limits, connIDs, groupIDs []string) *group.Group {
	g := group.New(id, id, group.Balancing)
	g.SetConcurrencyLimits(limits)
	for _, cid := range connIDs {
		g.AddChildConnection(cid)
	}
	for _, gid := range groupIDs {
		g.AddChildGroup(gid)
	}
	f.dir.PutGroup(g)
	return g
}

func bounded(total, perUser int) group.Limits {
	l := group.Limits{}
	if total > 0 {
		l.MaxSessions = group.Bounded(total)
	}
	if perUser > 0 {
		l.MaxSessionsPerUser = group.Bounded(perUser)
	}
	return l
}

var info = ClientInfo{RemoteAddr: "198.51.100.4", Program: "testclient"}

// TestConnectOrganizationalRejected verifies organizational groups never
// dispatch, even with available children.
func TestConnectOrganizationalRejected(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	g := group.New("org", "org", group.Organizational)
	g.AddChildConnection("c1")
	f.dir.PutGroup(g)

	_, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.Error(t, err)
	assert.Equal(t, admission.ReasonUnsupportedOperation, admission.ReasonOf(err))
	assert.Empty(t, f.opener.openOrder(), "no child may be attempted")
	assert.Equal(t, 0, f.reg.TotalFor("org"))
}

// TestConnectDispatchesToLeastLoaded verifies ranking: the child with the
// lowest current load wins.
func TestConnectDispatchesToLeastLoaded(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	f.addConnection("c2", group.Limits{})
	g := f.addBalancing("root", group.Limits{}, []string{"c1", "c2"}, nil)

	// Preload c1 with three sessions, c2 with one.
	for i := 0; i < 3; i++ {
		f.reg.TryAcquire("c1", fmt.Sprintf("u%d", i), 0, 0)
	}
	f.reg.TryAcquire("c2", "u9", 0, 0)

	h, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, []string{"c2"}, f.opener.openOrder())
	assert.Equal(t, "c2", h.ConnectionID())
}

// TestConnectStableTieOrder verifies equal loads keep configured order,
// with leaf connections ahead of nested groups.
func TestConnectStableTieOrder(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	f.addConnection("c2", group.Limits{})
	f.addConnection("c3", group.Limits{})
	f.addBalancing("nested", group.Limits{}, []string{"c3"}, nil)
	g := f.addBalancing("root", group.Limits{}, []string{"c1", "c2"}, []string{"nested"})

	h, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, []string{"c1"}, f.opener.openOrder())
}

// TestConnectGroupFullBeforeChildren verifies a full group rejects without
// touching any child.
func TestConnectGroupFullBeforeChildren(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	g := f.addBalancing("root", bounded(2, 0), []string{"c1"}, nil)

	f.reg.TryAcquire("root", "u1", 0, 0)
	f.reg.TryAcquire("root", "u2", 0, 0)

	_, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.Error(t, err)
	rej, ok := admission.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, admission.ReasonGroupFull, rej.Reason)
	assert.Equal(t, "root", rej.ScopeID)
	assert.Empty(t, f.opener.openOrder())
}

// TestConnectUserFullAtGroup verifies the per-user limit rejects before any
// child attempt, independent of other users.
func TestConnectUserFullAtGroup(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	g := f.addBalancing("root", bounded(0, 1), []string{"c1"}, nil)

	h, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.NoError(t, err)
	defer h.Close()

	_, err = f.disp.Connect(context.Background(), g, "alice", info)
	assert.Equal(t, admission.ReasonUserFull, admission.ReasonOf(err))

	h2, err := f.disp.Connect(context.Background(), g, "bob", info)
	require.NoError(t, err)
	h2.Close()
}

// TestConnectFallsThroughSaturatedChild verifies a saturated child is
// skipped and its counters stay consistent.
func TestConnectFallsThroughSaturatedChild(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", bounded(1, 0))
	f.addConnection("c2", group.Limits{})
	g := f.addBalancing("root", group.Limits{}, []string{"c1", "c2"}, nil)

	f.reg.TryAcquire("c1", "other", 1, 0)

	h, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.NoError(t, err)
	defer h.Close()

	// c1 was saturated before ranking, so c2 ranked first and c1 was never
	// even attempted.
	assert.Equal(t, []string{"c2"}, f.opener.openOrder())
	assert.Equal(t, 1, f.reg.TotalFor("c1"), "preloaded slot only")
}

// TestConnectFallbackOnOpenFailure verifies an establishment failure
// releases the leaf reservation and the search continues.
func TestConnectFallbackOnOpenFailure(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	f.addConnection("c2", group.Limits{})
	g := f.addBalancing("root", group.Limits{}, []string{"c1", "c2"}, nil)

	f.opener.failFor["c1"] = errors.New("endpoint unreachable")

	h, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "c2", h.ConnectionID())
	assert.Equal(t, 0, f.reg.TotalFor("c1"), "failed attempt must release its reservation")
	assert.Equal(t, 1, f.reg.TotalFor("c2"))
	assert.Equal(t, 1, f.reg.TotalFor("root"))
}

// TestConnectNoAvailableChild verifies exhaustion releases the group
// reservation and reports NO_AVAILABLE_CHILD.
func TestConnectNoAvailableChild(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	f.addConnection("c2", group.Limits{})
	g := f.addBalancing("root", group.Limits{}, []string{"c1", "c2"}, nil)

	f.opener.failFor["c1"] = errors.New("unreachable")
	f.opener.failFor["c2"] = errors.New("unreachable")

	_, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.Error(t, err)
	rej, ok := admission.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, admission.ReasonNoAvailableChild, rej.Reason)
	assert.Equal(t, "root", rej.ScopeID)

	assert.Equal(t, 0, f.reg.TotalFor("root"), "group reservation must be released")
	assert.Equal(t, 0, f.reg.TotalFor("c1"))
	assert.Equal(t, 0, f.reg.TotalFor("c2"))
}

// TestConnectNestedGroup verifies recursion through a nested balancing
// group builds the full reservation chain and close releases every hop.
func TestConnectNestedGroup(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("leaf", group.Limits{})
	f.addBalancing("inner", group.Limits{}, []string{"leaf"}, nil)
	outer := f.addBalancing("outer", group.Limits{}, nil, []string{"inner"})

	h, err := f.disp.Connect(context.Background(), outer, "alice", info)
	require.NoError(t, err)

	assert.Equal(t, 1, f.reg.TotalFor("outer"))
	assert.Equal(t, 1, f.reg.TotalFor("inner"))
	assert.Equal(t, 1, f.reg.TotalFor("leaf"))

	// The session is listed under every traversed scope.
	require.Len(t, f.reg.SessionsFor("outer"), 1)
	require.Len(t, f.reg.SessionsFor("inner"), 1)
	require.Len(t, f.reg.SessionsFor("leaf"), 1)

	require.NoError(t, h.Close())
	assert.Equal(t, 0, f.reg.TotalFor("outer"))
	assert.Equal(t, 0, f.reg.TotalFor("inner"))
	assert.Equal(t, 0, f.reg.TotalFor("leaf"))
	assert.Empty(t, f.reg.SessionsFor("outer"))
}

// TestConnectNestedGroupSaturatedFallsBack verifies a saturated nested
// group releases only its own state and the outer search continues.
func TestConnectNestedGroupSaturatedFallsBack(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("inner-leaf", group.Limits{})
	f.addConnection("direct", group.Limits{})
	f.addBalancing("inner", bounded(1, 0), []string{"inner-leaf"}, nil)
	outer := f.addBalancing("outer", group.Limits{}, []string{"direct"}, []string{"inner"})

	// Saturate the nested group and preload the direct connection so the
	// nested group ranks first.
	f.reg.TryAcquire("inner", "other", 1, 0)
	f.reg.TryAcquire("direct", "o1", 0, 0)
	f.reg.TryAcquire("direct", "o2", 0, 0)

	h, err := f.disp.Connect(context.Background(), outer, "alice", info)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "direct", h.ConnectionID())
	assert.Equal(t, 1, f.reg.TotalFor("inner"), "only the preloaded slot remains")
	assert.Equal(t, 1, f.reg.TotalFor("outer"))
}

// TestConnectCycleDetected verifies a cyclic hierarchy terminates with
// INVALID_CONFIGURATION and leaks nothing.
func TestConnectCycleDetected(t *testing.T) {
	f := newFixture(admission.Defaults{})
	a := f.addBalancing("a", group.Limits{}, nil, []string{"b"})
	f.addBalancing("b", group.Limits{}, nil, []string{"a"})

	_, err := f.disp.Connect(context.Background(), a, "alice", info)
	require.Error(t, err)
	rej, ok := admission.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, admission.ReasonInvalidConfiguration, rej.Reason)

	assert.Equal(t, 0, f.reg.TotalFor("a"))
	assert.Equal(t, 0, f.reg.TotalFor("b"))
}

// TestConnectDanglingChildSkipped verifies an unresolvable child reference
// is skipped like a saturated candidate.
func TestConnectDanglingChildSkipped(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("real", group.Limits{})
	g := f.addBalancing("root", group.Limits{}, []string{"ghost", "real"}, nil)

	h, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "real", h.ConnectionID())
}

// TestConnectContextCanceled verifies an abandoned dispatch releases
// everything and surfaces the cancellation, not a rejection.
func TestConnectContextCanceled(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	g := f.addBalancing("root", group.Limits{}, []string{"c1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.disp.Connect(ctx, g, "alice", info)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	_, isRejection := admission.AsRejection(err)
	assert.False(t, isRejection)

	assert.Equal(t, 0, f.reg.TotalFor("root"))
	assert.Equal(t, 0, f.reg.TotalFor("c1"))
	assert.Empty(t, f.opener.openOrder())
}

// TestConnectLeafDirect verifies the direct-leaf entry point: limits
// enforced, upstream failures wrapped.
func TestConnectLeafDirect(t *testing.T) {
	f := newFixture(admission.Defaults{})
	conn := f.addConnection("c1", bounded(0, 1))

	h, err := f.disp.ConnectLeaf(context.Background(), conn, "alice", info)
	require.NoError(t, err)
	assert.Equal(t, 1, f.reg.TotalFor("c1"))

	_, err = f.disp.ConnectLeaf(context.Background(), conn, "alice", info)
	assert.Equal(t, admission.ReasonUserFull, admission.ReasonOf(err))

	require.NoError(t, h.Close())
	assert.Equal(t, 0, f.reg.TotalFor("c1"))

	cause := errors.New("dial tcp 10.0.0.5:3389: connection refused")
	f.opener.failFor["c1"] = cause
	_, err = f.disp.ConnectLeaf(context.Background(), conn, "alice", info)
	rej, ok := admission.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, admission.ReasonUpstreamFailure, rej.Reason)
	assert.True(t, errors.Is(err, cause), "cause must stay unwrappable")
	assert.Equal(t, 0, f.reg.TotalFor("c1"))
}

// TestConnectConcurrentRace verifies racing dispatches never jointly exceed
// child limits: with two single-slot children exactly two requests win.
func TestConnectConcurrentRace(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", bounded(1, 0))
	f.addConnection("c2", bounded(1, 0))
	g := f.addBalancing("root", group.Limits{}, []string{"c1", "c2"}, nil)

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var handles []*SessionHandle
	reasons := make(map[admission.Reason]int)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		user := fmt.Sprintf("user-%d", i)
		go func() {
			defer wg.Done()
			h, err := f.disp.Connect(context.Background(), g, user, info)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				reasons[admission.ReasonOf(err)]++
				return
			}
			handles = append(handles, h)
		}()
	}
	wg.Wait()

	require.Len(t, handles, 2, "exactly one session per single-slot child")
	assert.Equal(t, racers-2, reasons[admission.ReasonNoAvailableChild])
	assert.Equal(t, 1, f.reg.TotalFor("c1"))
	assert.Equal(t, 1, f.reg.TotalFor("c2"))
	assert.Equal(t, 2, f.reg.TotalFor("root"))

	for _, h := range handles {
		require.NoError(t, h.Close())
	}
	assert.Equal(t, 0, f.reg.TotalFor("root"))
	assert.Equal(t, 0, f.reg.TotalFor("c1"))
	assert.Equal(t, 0, f.reg.TotalFor("c2"))
}

// TestConnectTimeoutDoesNotLeak verifies a dispatch that loses its context
// mid-search leaves zero counters behind.
func TestConnectTimeoutDoesNotLeak(t *testing.T) {
	f := newFixture(admission.Defaults{})
	f.addConnection("c1", group.Limits{})
	g := f.addBalancing("root", group.Limits{}, []string{"c1"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := f.disp.Connect(ctx, g, "alice", info)
	require.Error(t, err)
	assert.Equal(t, 0, f.reg.TotalFor("root"))
	assert.Equal(t, 0, f.reg.TotalFor("c1"))
}
