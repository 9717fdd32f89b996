package group

import "testing"

// TestParseLimit verifies the attribute text form maps onto the tri-state.
func TestParseLimit(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		defined   bool
		resolved  int // Resolve(99)
		rendering string
	}{
		{name: "empty is unset", input: "", defined: false, resolved: 99, rendering: ""},
		{name: "zero is unlimited", input: "0", defined: true, resolved: 0, rendering: "0"},
		{name: "positive is bounded", input: "7", defined: true, resolved: 7, rendering: "7"},
		{name: "non-numeric is an error", input: "abc", wantErr: true, defined: false, resolved: 99, rendering: ""},
		{name: "negative is an error", input: "-2", wantErr: true, defined: false, resolved: 99, rendering: ""},
		{name: "trailing junk is an error", input: "5x", wantErr: true, defined: false, resolved: 99, rendering: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lim, err := ParseLimit(tt.input)
			if tt.wantErr && err == nil {
				t.Fatalf("ParseLimit(%q) expected error, got none", tt.input)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("ParseLimit(%q) unexpected error: %v", tt.input, err)
			}
			if lim.Defined() != tt.defined {
				t.Errorf("Defined() = %v, want %v", lim.Defined(), tt.defined)
			}
			if got := lim.Resolve(99); got != tt.resolved {
				t.Errorf("Resolve(99) = %d, want %d", got, tt.resolved)
			}
			if got := lim.Text(); got != tt.rendering {
				t.Errorf("Text() = %q, want %q", got, tt.rendering)
			}
		})
	}
}

// TestLimitResolve verifies the default fallback contract: unset defers to
// the default, explicit values win, zero means unbounded in resolved form.
func TestLimitResolve(t *testing.T) {
	if got := UnsetLimit().Resolve(5); got != 5 {
		t.Errorf("unset limit with default 5 resolved to %d", got)
	}
	if got := Unlimited().Resolve(5); got != 0 {
		t.Errorf("explicit unlimited resolved to %d, want 0", got)
	}
	if got := Bounded(3).Resolve(5); got != 3 {
		t.Errorf("bounded(3) resolved to %d, want 3", got)
	}
}

// TestBoundedCollapsesToUnlimited verifies non-positive bounds behave like
// the "0" attribute value.
func TestBoundedCollapsesToUnlimited(t *testing.T) {
	for _, n := range []int{0, -1, -100} {
		lim := Bounded(n)
		if !lim.Defined() {
			t.Errorf("Bounded(%d) should be defined", n)
		}
		if got := lim.Resolve(9); got != 0 {
			t.Errorf("Bounded(%d).Resolve(9) = %d, want 0", n, got)
		}
	}
}

// TestLimitString verifies the human-readable rendering used in logs and
// the control API.
func TestLimitString(t *testing.T) {
	if s := UnsetLimit().String(); s != "unset" {
		t.Errorf("UnsetLimit().String() = %q", s)
	}
	if s := Unlimited().String(); s != "unlimited" {
		t.Errorf("Unlimited().String() = %q", s)
	}
	if s := Bounded(12).String(); s != "12" {
		t.Errorf("Bounded(12).String() = %q", s)
	}
}

// TestLimitZeroValue verifies the zero value of Limit is unset, so an
// unconfigured struct field behaves like an absent attribute.
func TestLimitZeroValue(t *testing.T) {
	var lim Limit
	if lim.Defined() {
		t.Error("zero-value Limit should be unset")
	}
	if got := lim.Resolve(4); got != 4 {
		t.Errorf("zero-value Limit resolved to %d, want default 4", got)
	}
}
