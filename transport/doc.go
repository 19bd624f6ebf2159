// Package transport defines the connection layer the Spartic router runs
// over, and provides an in-process implementation for tests and demos.
//
// The core consumes an abstract transport offering reliable, message-framed,
// authenticated duplex channels keyed by a peer's long-term public identity.
// Peer discovery, dialing, connection encryption and multiplexing all live
// behind the Transport interface; the production implementation is the
// libp2p transport in the libp2ptransport subpackage.
package transport
