package libp2ptransport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	leveldb "github.com/ipfs/go-ds-leveldb"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	routedhost "github.com/libp2p/go-libp2p/p2p/host/routed"
	"github.com/libp2p/go-msgio"
	"github.com/multiformats/go-multiaddr"

	"github.com/interfect/spartic/crypto"
	"github.com/interfect/spartic/transport"
)

// ProtocolID is the libp2p stream protocol all Spartic wire messages ride
// on. One stream per peer multiplexes every group.
const ProtocolID = "/spartic/1.0.0"

// Config carries the transport's settings.
type Config struct {
	// DataDir is the LevelDB keystore directory holding the identity key.
	DataDir string

	// ListenAddrs are multiaddrs to listen on. Empty means libp2p defaults.
	ListenAddrs []string

	// BootstrapPeers are extra multiaddrs to bootstrap the DHT from, on
	// top of the public defaults.
	BootstrapPeers []string

	// Log is the structured logger for transport events.
	Log *slog.Logger
}

// Transport implements transport.Transport over a DHT-routed libp2p host.
type Transport struct {
	log   *slog.Logger
	host  host.Host
	dht   *dht.IpfsDHT
	store *leveldb.Datastore
	pub   crypto.PublicKey

	mu          sync.Mutex
	connHandler transport.ConnectionHandler
	msgHandler  transport.MessageHandler
	messengers  map[peer.ID]*streamMessenger
	closed      bool
}

// New opens the keystore, brings up the libp2p host and DHT, and starts
// accepting Spartic streams.
func New(ctx context.Context, cfg *Config) (*Transport, error) {
	store, err := leveldb.NewDatastore(cfg.DataDir, &leveldb.Options{})
	if err != nil {
		return nil, fmt.Errorf("could not open keystore: %w", err)
	}

	privKey, err := loadOrMakeIdentity(ctx, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	opts := []libp2p.Option{
		libp2p.Identity(privKey),
		libp2p.NATPortMap(),
	}
	if len(cfg.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.ListenAddrs...))
	}
	baseHost, err := libp2p.New(opts...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("could not make libp2p host: %w", err)
	}

	dhtInstance, err := dht.New(ctx, baseHost,
		dht.BootstrapPeersFunc(dht.GetDefaultBootstrapPeerAddrInfos),
		dht.Datastore(store),
	)
	if err != nil {
		baseHost.Close()
		store.Close()
		return nil, fmt.Errorf("could not make DHT: %w", err)
	}
	node := routedhost.Wrap(baseHost, dhtInstance)

	pub, err := publicKeyFromLibp2p(privKey.GetPublic())
	if err != nil {
		node.Close()
		store.Close()
		return nil, err
	}

	t := &Transport{
		log:        cfg.Log,
		host:       node,
		dht:        dhtInstance,
		store:      store,
		pub:        pub,
		messengers: make(map[peer.ID]*streamMessenger),
	}
	node.SetStreamHandler(ProtocolID, t.handleStream)

	t.bootstrap(ctx, cfg.BootstrapPeers)
	return t, nil
}

// bootstrap dials the default DHT bootstrap peers plus any configured
// extras. Failures are logged and tolerated; the DHT needs some but not
// all of them.
func (t *Transport) bootstrap(ctx context.Context, extra []string) {
	peers := dht.GetDefaultBootstrapPeerAddrInfos()
	for _, raw := range extra {
		addr, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			t.log.Warn("bad bootstrap multiaddr", "addr", raw, "err", err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			t.log.Warn("bootstrap multiaddr has no peer id", "addr", raw, "err", err)
			continue
		}
		peers = append(peers, *info)
	}

	for _, info := range peers {
		t.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
		if err := t.host.Connect(ctx, info); err != nil {
			t.log.Debug("could not reach bootstrap peer", "peer", info.ID, "err", err)
		}
	}

	if err := t.dht.Bootstrap(ctx); err != nil {
		t.log.Warn("DHT bootstrap failed", "err", err)
	}
}

// PublicKey returns the local participant's identity.
func (t *Transport) PublicKey() crypto.PublicKey {
	return t.pub
}

// OnConnection registers the handler for established connections.
func (t *Transport) OnConnection(h transport.ConnectionHandler) {
	t.mu.Lock()
	t.connHandler = h
	t.mu.Unlock()
}

// OnMessage registers the handler for inbound payloads.
func (t *Transport) OnMessage(h transport.MessageHandler) {
	t.mu.Lock()
	t.msgHandler = h
	t.mu.Unlock()
}

// JoinPeer schedules a connection attempt: resolve the peer's addresses
// through the DHT if need be, connect, and open a Spartic stream. The
// attempt runs in the background; the connection handler fires on success.
func (t *Transport) JoinPeer(ctx context.Context, pk crypto.PublicKey) error {
	peerID, err := peerIDFromPublicKey(pk)
	if err != nil {
		return err
	}
	if peerID == t.host.ID() {
		return fmt.Errorf("cannot join self")
	}

	go t.connectPeer(ctx, peerID)
	return nil
}

func (t *Transport) connectPeer(ctx context.Context, peerID peer.ID) {
	t.mu.Lock()
	_, have := t.messengers[peerID]
	t.mu.Unlock()
	if have {
		return
	}

	if len(t.host.Peerstore().Addrs(peerID)) == 0 {
		info, err := t.dht.FindPeer(ctx, peerID)
		if err != nil {
			t.log.Warn("could not find peer in DHT", "peer", peerID, "err", err)
			return
		}
		t.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
	}

	if err := t.host.Connect(ctx, peer.AddrInfo{ID: peerID}); err != nil {
		t.log.Warn("could not connect to peer", "peer", peerID, "err", err)
		return
	}

	stream, err := t.host.NewStream(ctx, peerID, ProtocolID)
	if err != nil {
		t.log.Warn("could not open stream to peer", "peer", peerID, "err", err)
		return
	}
	t.handleStream(stream)
}

// handleStream wires up one Spartic stream, for both dialed and accepted
// connections. The remote identity comes from the connection's handshake,
// never from stream contents.
func (t *Transport) handleStream(stream network.Stream) {
	remotePub, err := publicKeyFromLibp2p(stream.Conn().RemotePublicKey())
	if err != nil {
		t.log.Warn("rejecting stream with unusable peer identity",
			"peer", stream.Conn().RemotePeer(), "err", err)
		stream.Reset()
		return
	}

	m := &streamMessenger{
		remote: remotePub,
		stream: stream,
		rw:     msgio.NewReadWriter(stream),
	}

	peerID := stream.Conn().RemotePeer()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		stream.Reset()
		return
	}
	if old, ok := t.messengers[peerID]; ok {
		old.Close()
	}
	t.messengers[peerID] = m
	connHandler := t.connHandler
	t.mu.Unlock()

	t.log.Debug("peer stream established", "peer", remotePub.String())
	go t.readLoop(peerID, m)
	if connHandler != nil {
		connHandler(m)
	}
}

// readLoop delivers inbound frames from one stream until it dies.
func (t *Transport) readLoop(peerID peer.ID, m *streamMessenger) {
	for {
		payload, err := m.rw.ReadMsg()
		if err != nil {
			t.dropMessenger(peerID, m)
			return
		}

		t.mu.Lock()
		handler := t.msgHandler
		t.mu.Unlock()
		if handler != nil {
			handler(m.remote, payload)
		}
		m.rw.ReleaseMsg(payload)
	}
}

func (t *Transport) dropMessenger(peerID peer.ID, m *streamMessenger) {
	m.Close()
	t.mu.Lock()
	if t.messengers[peerID] == m {
		delete(t.messengers, peerID)
	}
	t.mu.Unlock()
}

// Close shuts the host, DHT and keystore down.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	messengers := make([]*streamMessenger, 0, len(t.messengers))
	for _, m := range t.messengers {
		messengers = append(messengers, m)
	}
	t.messengers = make(map[peer.ID]*streamMessenger)
	t.mu.Unlock()

	for _, m := range messengers {
		m.Close()
	}

	var firstErr error
	for _, closer := range []func() error{t.dht.Close, t.host.Close, t.store.Close} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Addrs returns the host's listen multiaddrs, for display.
func (t *Transport) Addrs() []string {
	info := peer.AddrInfo{ID: t.host.ID(), Addrs: t.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// streamMessenger sends framed payloads down one libp2p stream.
type streamMessenger struct {
	remote crypto.PublicKey
	stream network.Stream
	rw     msgio.ReadWriteCloser

	writeMu sync.Mutex
}

func (m *streamMessenger) Peer() transport.PeerInfo {
	return transport.PeerInfo{PublicKey: m.remote}
}

func (m *streamMessenger) Send(_ context.Context, payload []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.rw.WriteMsg(payload)
}

func (m *streamMessenger) Close() error {
	return m.stream.Reset()
}

// publicKeyFromLibp2p converts a libp2p public key to the protocol's raw
// 32-byte form. Only Ed25519 identities can participate.
func publicKeyFromLibp2p(pub libp2pcrypto.PubKey) (crypto.PublicKey, error) {
	if pub == nil || pub.Type() != libp2pcrypto.Ed25519 {
		return crypto.PublicKey{}, fmt.Errorf("peer identity is not Ed25519")
	}
	raw, err := pub.Raw()
	if err != nil {
		return crypto.PublicKey{}, fmt.Errorf("could not extract raw public key: %w", err)
	}
	return crypto.NewPublicKeyFromBytes(raw)
}

// peerIDFromPublicKey converts a protocol public key to a libp2p peer ID
// for dialing.
func peerIDFromPublicKey(pk crypto.PublicKey) (peer.ID, error) {
	pub, err := libp2pcrypto.UnmarshalEd25519PublicKey(pk[:])
	if err != nil {
		return "", fmt.Errorf("could not interpret public key: %w", err)
	}
	return peer.IDFromPublicKey(pub)
}
