// Package control provides the daemon's HTTP control API: a read-only
// operator surface over the group hierarchy and live sessions, plus forced
// disconnect.
//
// # Endpoints
//
// All /api routes return JSON and, when a token is configured, require
// "Authorization: Bearer <token>".
//
//	GET    /api/status                        daemon uptime, totals, defaults
//	GET    /api/groups                        every group with active counts
//	GET    /api/groups/{identifier}           group detail with per-user counts
//	GET    /api/groups/{identifier}/sessions  live sessions under the group
//	GET    /api/connections                   every leaf connection
//	GET    /api/connections/{identifier}      connection detail
//	GET    /api/connections/{identifier}/sessions
//	GET    /api/sessions                      every live session
//	DELETE /api/sessions/{id}                 force disconnect
//
// /healthz (liveness) and /metrics (Prometheus, when enabled) skip
// authentication so probes and scrapers need no credentials.
//
// # Lifecycle
//
// Start launches the listener in a background goroutine and returns. Stop
// drains in-flight requests within the configured shutdown timeout. The
// server also implements io.Closer so it can ride the daemon's shared
// shutdown path.
package control
