// Package registry tracks live session state: per-scope active counts used
// by admission, and the live session records behind the reporting and
// forced-disconnect surfaces.
//
// # Overview
//
// A scope is one group or connection identifier. For each scope the registry
// keeps a total active count and a per-user breakdown, mutated only through
// TryAcquire and Release. TryAcquire is the single check-and-increment step
// the admission controller builds on: the counter comparison and the
// increment happen under one per-scope lock, so a limit can never be
// exceeded by two racing requests.
//
// Separately, the registry records established sessions (identifier, user,
// leaf connection, start time) against every scope the session traversed,
// which feeds session listings and lets Kill force-close a session by
// identifier.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Unrelated scopes acquire and
// release independently; the shared scope index is only briefly read-locked
// on the hot path.
package registry
