// Package console renders a live terminal dashboard over the control API.
//
// The dashboard polls /api/status, /api/groups and /api/connections on an
// interval and draws one row per scope with its active session count and
// effective limits. It is read-only; kills and topology changes go through
// the control API directly.
//
// Press q, esc or ctrl+c to leave the dashboard.
package console
