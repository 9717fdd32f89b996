package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conngate/conngate/lib/group"
)

// TestMemoryCRUD verifies lookups, listings and removals.
func TestMemoryCRUD(t *testing.T) {
	dir := NewMemory()

	dir.PutGroup(group.New("g2", "West", group.Balancing))
	dir.PutGroup(group.New("g1", "East", group.Organizational))
	dir.PutConnection(group.NewConnection("c1", "Bastion"))

	g, ok := dir.Group("g1")
	require.True(t, ok)
	assert.Equal(t, "East", g.Name())

	_, ok = dir.Group("missing")
	assert.False(t, ok)

	c, ok := dir.Connection("c1")
	require.True(t, ok)
	assert.Equal(t, "Bastion", c.Name())

	assert.Equal(t, []string{"g1", "g2"}, dir.GroupIdentifiers(), "sorted")
	assert.Equal(t, []string{"c1"}, dir.ConnectionIdentifiers())

	dir.RemoveGroup("g1")
	dir.RemoveConnection("c1")
	_, ok = dir.Group("g1")
	assert.False(t, ok)
	_, ok = dir.Connection("c1")
	assert.False(t, ok)
}

// TestMemoryIdentifiersWithin verifies child listings come from the parent
// group's configured children.
func TestMemoryIdentifiersWithin(t *testing.T) {
	dir := NewMemory()

	parent := group.New("root", "Root", group.Balancing)
	parent.AddChildConnection("c1")
	parent.AddChildConnection("c2")
	parent.AddChildGroup("nested")
	dir.PutGroup(parent)

	assert.Equal(t, []string{"c1", "c2"}, dir.ConnectionIdentifiersWithin("root"))
	assert.Equal(t, []string{"nested"}, dir.GroupIdentifiersWithin("root"))

	assert.Nil(t, dir.GroupIdentifiersWithin("missing"))
	assert.Nil(t, dir.ConnectionIdentifiersWithin("missing"))
}

// TestMemoryReplaceWith verifies a wholesale swap drops stale entries and
// leaves the source directory intact.
func TestMemoryReplaceWith(t *testing.T) {
	dir := NewMemory()
	dir.PutGroup(group.New("old", "Old", group.Balancing))
	dir.PutConnection(group.NewConnection("stale", "Stale"))

	fresh := NewMemory()
	fresh.PutGroup(group.New("new", "New", group.Organizational))
	fresh.PutConnection(group.NewConnection("c1", "First"))

	dir.ReplaceWith(fresh)

	_, ok := dir.Group("old")
	assert.False(t, ok, "stale group survived the swap")
	_, ok = dir.Connection("stale")
	assert.False(t, ok, "stale connection survived the swap")

	g, ok := dir.Group("new")
	require.True(t, ok)
	assert.Equal(t, "New", g.Name())
	assert.Equal(t, []string{"c1"}, dir.ConnectionIdentifiers())

	_, ok = fresh.Group("new")
	assert.True(t, ok, "source directory must stay usable")
}
