package group

import (
	"sync"
	"testing"
)

// TestNewGroup verifies identifier, name and type are carried through.
func TestNewGroup(t *testing.T) {
	g := New("g1", "Engineering", Balancing)

	if g.Identifier() != "g1" {
		t.Errorf("Identifier() = %q, want g1", g.Identifier())
	}
	if g.Name() != "Engineering" {
		t.Errorf("Name() = %q, want Engineering", g.Name())
	}
	if g.Type() != Balancing {
		t.Errorf("Type() = %v, want Balancing", g.Type())
	}
	if g.Scope() != ScopeGroup {
		t.Errorf("Scope() = %v, want ScopeGroup", g.Scope())
	}
}

// TestParseType verifies the textual forms used by topology files.
func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{input: "BALANCING", want: Balancing},
		{input: "balancing", want: Balancing},
		{input: "ORGANIZATIONAL", want: Organizational},
		{input: "Organizational", want: Organizational},
		{input: "round-robin", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseType(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseType(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseType(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestGroupChildren verifies children keep configured order and the
// accessors return copies.
func TestGroupChildren(t *testing.T) {
	g := New("g1", "root", Balancing)
	g.AddChildConnection("c1")
	g.AddChildConnection("c2")
	g.AddChildGroup("g2")

	conns := g.ChildConnections()
	if len(conns) != 2 || conns[0] != "c1" || conns[1] != "c2" {
		t.Errorf("ChildConnections() = %v, want [c1 c2]", conns)
	}

	groups := g.ChildGroups()
	if len(groups) != 1 || groups[0] != "g2" {
		t.Errorf("ChildGroups() = %v, want [g2]", groups)
	}

	// Mutating the returned slice must not affect the group.
	conns[0] = "tampered"
	if got := g.ChildConnections(); got[0] != "c1" {
		t.Error("ChildConnections() returned a live reference, want a copy")
	}
}

// TestGroupAttributesRoundTrip verifies the attribute map form for all three
// limit states.
func TestGroupAttributesRoundTrip(t *testing.T) {
	g := New("g1", "root", Balancing)

	// Unset limits render as empty strings, with both keys present.
	attrs := g.Attributes()
	if v, ok := attrs[MaxSessionsAttribute]; !ok || v != "" {
		t.Errorf("unset %s = %q, %v; want present and empty", MaxSessionsAttribute, v, ok)
	}
	if v, ok := attrs[MaxSessionsPerUserAttribute]; !ok || v != "" {
		t.Errorf("unset %s = %q, %v; want present and empty", MaxSessionsPerUserAttribute, v, ok)
	}

	g.SetAttributes(map[string]string{
		MaxSessionsAttribute:        "10",
		MaxSessionsPerUserAttribute: "0",
	})

	limits := g.ConcurrencyLimits()
	if got := limits.MaxSessions.Resolve(99); got != 10 {
		t.Errorf("MaxSessions resolved to %d, want 10", got)
	}
	if !limits.MaxSessionsPerUser.Defined() || limits.MaxSessionsPerUser.Resolve(99) != 0 {
		t.Errorf("MaxSessionsPerUser = %v, want explicit unlimited", limits.MaxSessionsPerUser)
	}

	attrs = g.Attributes()
	if attrs[MaxSessionsAttribute] != "10" {
		t.Errorf("%s = %q, want 10", MaxSessionsAttribute, attrs[MaxSessionsAttribute])
	}
	if attrs[MaxSessionsPerUserAttribute] != "0" {
		t.Errorf("%s = %q, want 0", MaxSessionsPerUserAttribute, attrs[MaxSessionsPerUserAttribute])
	}
}

// TestSetAttributesMalformed verifies a malformed value falls back to unset
// without blocking the other field.
func TestSetAttributesMalformed(t *testing.T) {
	g := New("g1", "root", Balancing)
	g.SetAttributes(map[string]string{
		MaxSessionsAttribute:        "not-a-number",
		MaxSessionsPerUserAttribute: "3",
	})

	limits := g.ConcurrencyLimits()
	if limits.MaxSessions.Defined() {
		t.Error("malformed max-connections should be treated as unset")
	}
	if got := limits.MaxSessionsPerUser.Resolve(0); got != 3 {
		t.Errorf("MaxSessionsPerUser resolved to %d, want 3", got)
	}
}

// TestConnectionParameters verifies parameter storage is copy-safe.
func TestConnectionParameters(t *testing.T) {
	c := NewConnection("c1", "bastion")
	c.SetParameters(map[string]string{"hostname": "10.0.0.5", "port": "22"})
	c.SetParameter("protocol", "ssh")

	if got := c.Parameter("hostname"); got != "10.0.0.5" {
		t.Errorf("Parameter(hostname) = %q", got)
	}
	if got := c.Parameter("missing"); got != "" {
		t.Errorf("Parameter(missing) = %q, want empty", got)
	}

	params := c.Parameters()
	if len(params) != 3 {
		t.Errorf("Parameters() has %d entries, want 3", len(params))
	}
	params["hostname"] = "tampered"
	if got := c.Parameter("hostname"); got != "10.0.0.5" {
		t.Error("Parameters() returned a live reference, want a copy")
	}

	if c.Scope() != ScopeConnection {
		t.Errorf("Scope() = %v, want ScopeConnection", c.Scope())
	}
}

// TestGroupConcurrentAccess exercises concurrent limit updates against
// attribute reads; run with -race.
func TestGroupConcurrentAccess(t *testing.T) {
	g := New("g1", "root", Balancing)
	c := NewConnection("c1", "leaf")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.SetAttributes(map[string]string{MaxSessionsAttribute: "5"})
				c.SetParameter("port", "22")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = g.Attributes()
				_ = g.ChildConnections()
				_ = c.Parameters()
			}
		}()
	}
	wg.Wait()

	if got := g.ConcurrencyLimits().MaxSessions.Resolve(0); got != 5 {
		t.Errorf("MaxSessions resolved to %d after concurrent updates, want 5", got)
	}
}
