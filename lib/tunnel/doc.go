// Package tunnel provides the in-process loopback implementation of the
// dispatch.Opener collaborator.
//
// Real deployments plug a transport-specific Opener into the gateway. The
// loopback opener services sessions entirely in-process over a pipe whose
// far end echoes the client's bytes back. It backs the daemon's demo mode
// and exercises the dispatch path end to end in tests.
//
// Two connection parameters steer it: "loopback-delay" (a Go duration,
// simulated establishment latency honoring the caller's context) and
// "loopback-refuse" (any non-empty value makes establishment fail, standing
// in for an unreachable endpoint).
package tunnel
