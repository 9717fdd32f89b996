// Package dispatch selects the endpoint that services a connection request
// and tracks the resulting session's lifecycle.
//
// # Overview
//
// A request against a balancing group is admitted at the group first, then
// routed to one of the group's children: candidates are ranked ascending by
// current load (configured order breaks ties), leaf connections are opened
// through the Opener collaborator, nested balancing groups recurse. When a
// candidate is saturated or fails to open, the search falls through to the
// next; when every candidate is exhausted the group's own reservation is
// released and the request is rejected with NO_AVAILABLE_CHILD.
// Organizational groups never dispatch and reject with
// UNSUPPORTED_OPERATION.
//
// A successful dispatch returns a SessionHandle owning the raw session and
// the complete reservation chain (one per group traversed plus the leaf).
// Close is idempotent: the first call, whether from the owner, from a forced
// disconnect, or from the watcher that observes the raw session ending,
// releases every reservation exactly once and deregisters the session.
//
// # Load Ranking
//
// Child loads are read once on entry to a group; the ranking is a
// best-effort snapshot. Two racing requests may both pick the same
// least-loaded child, in which case the child's own atomic admission
// resolves the race and the loser falls through to its next candidate.
package dispatch
