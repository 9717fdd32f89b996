// Package directory resolves group and connection identifiers to their
// configuration objects.
//
// The Directory interface is the core's view of the external management
// layer: dispatch resolves child identifiers through it on every request,
// and the control API lists hierarchy contents with it. This package ships
// a concurrency-safe in-memory implementation and a YAML topology loader
// for the daemon and tests; database-backed directories live outside this
// repository.
package directory
