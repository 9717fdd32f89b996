package admission

import (
	"errors"
	"fmt"
)

// Reason classifies why a connection request was refused. The values double
// as metric and API labels.
type Reason string

const (
	// ReasonGroupFull: the scope's total session limit is reached. Applies
	// to both group and connection scopes.
	ReasonGroupFull Reason = "GROUP_FULL"
	// ReasonUserFull: the requesting user's per-user limit in the scope is
	// reached.
	ReasonUserFull Reason = "USER_FULL"
	// ReasonNoAvailableChild: a balancing group admitted the request but
	// every candidate child refused or failed.
	ReasonNoAvailableChild Reason = "NO_AVAILABLE_CHILD"
	// ReasonUnsupportedOperation: the target cannot service connection
	// requests, such as an organizational group.
	ReasonUnsupportedOperation Reason = "UNSUPPORTED_OPERATION"
	// ReasonUpstreamFailure: the tunnel-establishment collaborator failed.
	// The underlying error is wrapped.
	ReasonUpstreamFailure Reason = "UPSTREAM_FAILURE"
	// ReasonInvalidConfiguration: the group topology is unusable, such as a
	// cycle in the group graph.
	ReasonInvalidConfiguration Reason = "INVALID_CONFIGURATION"
)

// Rejection is the typed refusal returned by admission and dispatch. It is
// an ordinary error value; ReasonUpstreamFailure rejections wrap their
// cause.
type Rejection struct {
	Reason  Reason
	ScopeID string // Scope that refused, empty when not scope-specific
	Cause   error  // Underlying error, set for wrapped failures
}

// NewRejection builds a refusal attributed to the given scope.
func NewRejection(reason Reason, scopeID string) *Rejection {
	return &Rejection{Reason: reason, ScopeID: scopeID}
}

// UpstreamRejection wraps a collaborator failure for the given scope.
func UpstreamRejection(scopeID string, cause error) *Rejection {
	return &Rejection{Reason: ReasonUpstreamFailure, ScopeID: scopeID, Cause: cause}
}

// ConfigRejection marks the given scope's configuration as unusable.
func ConfigRejection(scopeID string, cause error) *Rejection {
	return &Rejection{Reason: ReasonInvalidConfiguration, ScopeID: scopeID, Cause: cause}
}

func (e *Rejection) Error() string {
	switch {
	case e.ScopeID != "" && e.Cause != nil:
		return fmt.Sprintf("session rejected: %s [%s]: %v", e.Reason, e.ScopeID, e.Cause)
	case e.ScopeID != "":
		return fmt.Sprintf("session rejected: %s [%s]", e.Reason, e.ScopeID)
	case e.Cause != nil:
		return fmt.Sprintf("session rejected: %s: %v", e.Reason, e.Cause)
	default:
		return fmt.Sprintf("session rejected: %s", e.Reason)
	}
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Rejection) Unwrap() error {
	return e.Cause
}

// AsRejection extracts a *Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ReasonOf returns the rejection reason carried by err, or the empty Reason
// when err is not a rejection.
func ReasonOf(err error) Reason {
	if rej, ok := AsRejection(err); ok {
		return rej.Reason
	}
	return ""
}
