// Package admission decides whether a connection request may take a session
// slot in a scope, enforcing the scope's concurrency limits atomically.
//
// # Overview
//
// The Resolver collapses a scope's tri-state limits into enforceable counts:
// unset limits fall back to the process defaults injected at construction,
// an explicit zero means unbounded, and positive values bound the count.
// Group and connection scopes resolve against independent default pairs.
//
// The Controller performs the admission itself. TryAdmit either returns a
// Reservation, one held slot that the caller now owns and must release
// exactly once, or a Rejection carrying a machine-readable Reason. The
// check against both limits and the counter increment are a single atomic
// step per scope, so concurrent requests can never jointly exceed a limit.
//
// # Rejection Taxonomy
//
// Every refusal across admission and dispatch is a *Rejection with one of
// the Reason values defined here, usable directly as a metric or API label.
// Rejections are ordinary control flow, not failures; collaborator errors
// are wrapped under ReasonUpstreamFailure and remain reachable through
// errors.Unwrap.
package admission
