package transport

import (
	"context"

	"github.com/interfect/spartic/crypto"
)

// PeerInfo describes an authenticated remote peer. The transport guarantees
// the public key was verified cryptographically at connect time.
type PeerInfo struct {
	PublicKey crypto.PublicKey
}

// Messenger sends framed payloads to one authenticated peer. Payload
// boundaries are preserved; delivery is reliable and in order per peer.
type Messenger interface {
	// Peer identifies the remote end.
	Peer() PeerInfo

	// Send delivers one framed payload to the peer.
	Send(ctx context.Context, payload []byte) error

	// Close tears down the channel to this peer.
	Close() error
}

// ConnectionHandler is invoked once per established peer connection, for
// both dialed and accepted connections.
type ConnectionHandler func(m Messenger)

// MessageHandler is invoked for every inbound payload. The sender's public
// key is the transport-authenticated identity of the connection the payload
// arrived on, never a claim inside the payload.
type MessageHandler func(from crypto.PublicKey, payload []byte)

// Transport provides authenticated message channels between participants.
type Transport interface {
	// PublicKey returns the local participant's long-term identity.
	PublicKey() crypto.PublicKey

	// JoinPeer schedules a connection attempt to the given peer. Success is
	// signaled through the connection handler, not the return value; an
	// error means the attempt could not even be scheduled.
	JoinPeer(ctx context.Context, peer crypto.PublicKey) error

	// OnConnection registers the handler for established connections.
	// It must be called before JoinPeer.
	OnConnection(h ConnectionHandler)

	// OnMessage registers the handler for inbound payloads.
	// It must be called before JoinPeer.
	OnMessage(h MessageHandler)

	// Close shuts the transport down and drops all connections.
	Close() error
}
