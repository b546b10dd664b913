// Package websocket is a client-only implementation of a WebSocket
// engine (RFC 6455) for a single long-lived connection to one peer.
//
// Unlike a typical client, this engine has no internal goroutines for
// reading or writing. Sending is caller-driven (SendMessage, SendPing,
// SendPong, Disconnect); receiving is caller-polled: the caller invokes
// [Session.Receive] in a loop, and each call performs at most one
// transport read before returning control. This makes the engine easy
// to embed in a caller's own event loop, at the cost of the caller
// needing to call Receive regularly.
//
// Design goals, in order: correctness against a single fixed peer
// implementation (including its deliberate protocol deviations, see
// below), predictable resource usage (one fixed-size frame buffer per
// session, no unbounded growth), and idiomatic, minimalistic code.
//
// Two deliberate deviations from RFC 6455 are preserved here, because
// the peer this engine talks to depends on them:
//
//  1. Outbound frames are never masked, even though RFC 6455 requires
//     client-to-server masking. See frame.go.
//  2. A fragmented message delivers each non-final fragment to its
//     callback individually, rather than being buffered until the
//     final fragment arrives. See receive.go.
//
// WebSocket extensions and subprotocols are not supported.
package websocket
