package group

import (
	"strconv"

	"github.com/samber/oops"
)

// Limit is a tri-state concurrency limit: unset, unlimited, or bounded.
//
// An unset limit defers to whatever default the deployment configures for
// the scope kind. An explicit zero means unlimited. A positive value bounds
// the number of simultaneous sessions. The zero value of Limit is unset.
type Limit struct {
	defined bool
	max     int
}

// UnsetLimit returns a limit that defers to the configured default.
func UnsetLimit() Limit {
	return Limit{}
}

// Unlimited returns an explicit no-limit value. It overrides any default.
func Unlimited() Limit {
	return Limit{defined: true}
}

// Bounded returns a limit of n simultaneous sessions. Values of n less than
// one collapse to Unlimited, mirroring the attribute format where zero means
// no limit.
func Bounded(n int) Limit {
	if n <= 0 {
		return Unlimited()
	}
	return Limit{defined: true, max: n}
}

// Defined reports whether the limit was explicitly configured, as opposed
// to deferring to a default.
func (l Limit) Defined() bool {
	return l.defined
}

// Resolve collapses the tri-state into a plain count: an unset limit
// resolves to def, anything explicit resolves to its own value. In the
// resolved form zero means unbounded.
func (l Limit) Resolve(def int) int {
	if !l.defined {
		return def
	}
	return l.max
}

// Text renders the limit in its attribute form: empty string when unset,
// "0" for unlimited, the decimal count otherwise.
func (l Limit) Text() string {
	if !l.defined {
		return ""
	}
	return strconv.Itoa(l.max)
}

func (l Limit) String() string {
	switch {
	case !l.defined:
		return "unset"
	case l.max == 0:
		return "unlimited"
	default:
		return strconv.Itoa(l.max)
	}
}

// ParseLimit parses the attribute form accepted by Text. An empty string is
// unset. A malformed or negative value returns an error alongside an unset
// limit so callers can recover without changing behavior.
func ParseLimit(s string) (Limit, error) {
	if s == "" {
		return UnsetLimit(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return UnsetLimit(), oops.Errorf("limit %q is not a non-negative integer", s)
	}
	if n < 0 {
		return UnsetLimit(), oops.Errorf("limit %d is negative", n)
	}
	if n == 0 {
		return Unlimited(), nil
	}
	return Bounded(n), nil
}

// Limits couples the two concurrency limits every scope carries: the total
// number of simultaneous sessions and the number any single user may hold.
type Limits struct {
	MaxSessions        Limit
	MaxSessionsPerUser Limit
}
