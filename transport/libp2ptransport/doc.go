// Package libp2ptransport is the production Spartic transport: a libp2p
// host with an Ed25519 identity persisted in a LevelDB keystore, Kademlia
// DHT peer routing so participants can be dialed by public key alone, and
// length-prefixed message framing on a dedicated stream protocol.
//
// libp2p authenticates the remote identity during the connection handshake,
// which is exactly the guarantee the router needs: the sender key attached
// to every inbound payload is the cryptographically verified identity of
// the connection it arrived on.
package libp2ptransport
