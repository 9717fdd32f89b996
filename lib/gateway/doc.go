// Package gateway assembles the admission and dispatch machinery behind the
// daemon's single entry point.
//
// # Overview
//
// Gateway.Connect resolves an identifier through the directory, runs the
// optional per-user connect-attempt throttle, and hands the request to the
// dispatcher: groups dispatch through the balancing hierarchy, connections
// open directly. The reporting surface (active counts, live session
// listings, forced disconnect) reads straight from the session registry.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The throttle keeps one token
// bucket per user; a janitor goroutine drops buckets idle longer than the
// configured eviction window.
package gateway
