package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conngate/conngate/lib/admission"
	"github.com/conngate/conngate/lib/group"
)

func establishOne(t *testing.T, f *fixture) *SessionHandle {
	t.Helper()
	f.addConnection("c1", group.Limits{})
	g := f.addBalancing("root", group.Limits{}, []string{"c1"}, nil)
	h, err := f.disp.Connect(context.Background(), g, "alice", info)
	require.NoError(t, err)
	return h
}

func waitClosed(t *testing.T, h *SessionHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session handle never closed")
	}
}

// TestHandleCloseReleasesEverything verifies one Close returns every
// reservation and removes the registry record.
func TestHandleCloseReleasesEverything(t *testing.T) {
	f := newFixture(admission.Defaults{})
	h := establishOne(t, f)

	assert.Equal(t, 1, f.reg.TotalFor("root"))
	assert.Equal(t, 1, f.reg.TotalFor("c1"))
	assert.Equal(t, 1, f.reg.UserTotalFor("root", "alice"))
	require.Len(t, f.reg.Sessions(), 1)

	require.NoError(t, h.Close())
	waitClosed(t, h)

	assert.Equal(t, 0, f.reg.TotalFor("root"))
	assert.Equal(t, 0, f.reg.TotalFor("c1"))
	assert.Equal(t, 0, f.reg.UserTotalFor("root", "alice"))
	assert.Empty(t, f.reg.Sessions())
}

// TestHandleCloseIdempotent verifies repeated and concurrent closes release
// each reservation exactly once.
func TestHandleCloseIdempotent(t *testing.T) {
	f := newFixture(admission.Defaults{})
	h := establishOne(t, f)

	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { done <- h.Close() }()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}
	require.NoError(t, h.Close())

	// A double release would push the counters negative; the registry pins
	// them at zero and logs, so zero here means exactly-once.
	assert.Equal(t, 0, f.reg.TotalFor("root"))
	assert.Equal(t, 0, f.reg.TotalFor("c1"))

	stats := f.reg.Stats()
	assert.Equal(t, stats.TotalAcquired, stats.TotalReleased)
}

// TestHandleClosesWhenRawSessionEnds verifies the watcher releases the
// handle when the remote stream dies on its own.
func TestHandleClosesWhenRawSessionEnds(t *testing.T) {
	f := newFixture(admission.Defaults{})
	h := establishOne(t, f)

	f.opener.sessions["c1"].terminate()
	waitClosed(t, h)

	assert.Equal(t, 0, f.reg.TotalFor("root"))
	assert.Equal(t, 0, f.reg.TotalFor("c1"))
	assert.Empty(t, f.reg.Sessions())
}

// TestHandleKilledThroughRegistry verifies a forced disconnect by session
// identifier closes the handle and its raw stream.
func TestHandleKilledThroughRegistry(t *testing.T) {
	f := newFixture(admission.Defaults{})
	h := establishOne(t, f)

	require.True(t, f.reg.Kill(h.ID()))
	waitClosed(t, h)

	assert.Equal(t, 0, f.reg.TotalFor("root"))
	assert.Empty(t, f.reg.Sessions())
	assert.False(t, f.reg.Kill(h.ID()), "second kill finds nothing")

	raw := f.opener.sessions["c1"]
	raw.mu.Lock()
	closed := raw.closed
	raw.mu.Unlock()
	assert.True(t, closed, "raw stream must be closed by the kill")
}

// TestHandleAccessors verifies the handle exposes the identity the registry
// records.
func TestHandleAccessors(t *testing.T) {
	f := newFixture(admission.Defaults{})
	h := establishOne(t, f)
	defer h.Close()

	assert.NotEmpty(t, h.ID())
	assert.Equal(t, "alice", h.User())
	assert.Equal(t, "c1", h.ConnectionID())
	assert.False(t, h.StartedAt().IsZero())

	sessions := f.reg.SessionsFor("c1")
	require.Len(t, sessions, 1)
	assert.Equal(t, h.ID(), sessions[0].ID)
	assert.Equal(t, info.RemoteAddr, sessions[0].RemoteAddr)
}
