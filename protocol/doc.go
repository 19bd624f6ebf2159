// Package protocol implements the Spartic session state machine and the
// wire messages it exchanges.
//
// A Session is the local participant's membership in one group. It performs
// the pairwise shared-key exchange, orders inbound and outbound blocks into
// sequenced rounds, XOR-combines received blocks with the local block, and
// emits recovered round results. Sessions are deliberately synchronous:
// every method runs to completion without blocking, all I/O lives in the
// router, and outbound traffic is exposed as per-peer FIFO queues the
// router drains. This keeps protocol transitions atomic and testable
// without any async harness.
//
// Misbehavior by a remote peer (duplicate keys, out-of-window or duplicate
// or wrong-size blocks) never fails a session; it is reported back to the
// offending peer as a queued ErrorMessage. Misuse by the local caller is
// returned as an error and leaves the session untouched.
package protocol
