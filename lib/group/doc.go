// Package group defines the configuration model the admission and dispatch
// layers operate on: connection groups, leaf connections, and the tri-state
// concurrency limits both carry.
//
// Groups form a tree. Organizational groups exist purely for hierarchy and
// never accept connection requests themselves; balancing groups dispatch
// incoming requests across their children. Leaf connections describe a single
// remote endpoint through opaque parameters the core never interprets.
//
// Limits are tri-state: unset (fall back to a process default), unlimited
// (an explicit zero), or bounded to a positive count. They round-trip through
// the two text attributes the management layer edits, "max-connections" and
// "max-connections-per-user".
//
// All types in this package are safe for concurrent use; the management
// layer may update limits and children while the dispatch path reads them.
package group
