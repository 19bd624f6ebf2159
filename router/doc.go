// Package router connects Spartic sessions to a transport.
//
// The router owns one session per group and a table of live messengers per
// peer. Inbound transport payloads are decoded and dispatched to the
// session for their group, but only when the sending peer is a member of
// that group; everything else is answered with a wire error. Outbound, the
// router drains each session's per-peer queues onto whichever messengers
// are live, leaving traffic for disconnected peers queued.
//
// Sessions never touch the transport and hold no reference back to the
// router; the router is the sole owner and the sole caller, which keeps
// the session a pure state machine.
package router
