package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/interfect/spartic/crypto"
)

// Network is an in-process hub connecting MemoryTransports by public key.
// It stands in for a real network in tests and demos: delivery is reliable,
// ordered, and asynchronous (each transport dispatches inbound payloads
// from its own goroutine, like a socket reader would).
type Network struct {
	mu         sync.Mutex
	transports map[crypto.PublicKey]*MemoryTransport
}

// NewNetwork creates an empty in-process network.
func NewNetwork() *Network {
	return &Network{transports: make(map[crypto.PublicKey]*MemoryTransport)}
}

// NewTransport attaches a new transport for the given identity to the
// network.
func (n *Network) NewTransport(id *crypto.Identity) *MemoryTransport {
	t := &MemoryTransport{
		network: n,
		pub:     id.PublicKey(),
		inbox:   make(chan inbound, 64),
		done:    make(chan struct{}),
	}
	go t.dispatch()

	n.mu.Lock()
	n.transports[t.pub] = t
	n.mu.Unlock()
	return t
}

func (n *Network) lookup(pk crypto.PublicKey) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transports[pk]
}

func (n *Network) remove(pk crypto.PublicKey) {
	n.mu.Lock()
	delete(n.transports, pk)
	n.mu.Unlock()
}

type inbound struct {
	from    crypto.PublicKey
	payload []byte
}

// MemoryTransport is one participant's endpoint on a Network.
type MemoryTransport struct {
	network *Network
	pub     crypto.PublicKey

	mu          sync.Mutex
	connHandler ConnectionHandler
	msgHandler  MessageHandler
	closed      bool

	inbox chan inbound
	done  chan struct{}
}

// PublicKey returns the local participant's identity.
func (t *MemoryTransport) PublicKey() crypto.PublicKey {
	return t.pub
}

// OnConnection registers the handler for established connections.
func (t *MemoryTransport) OnConnection(h ConnectionHandler) {
	t.mu.Lock()
	t.connHandler = h
	t.mu.Unlock()
}

// OnMessage registers the handler for inbound payloads.
func (t *MemoryTransport) OnMessage(h MessageHandler) {
	t.mu.Lock()
	t.msgHandler = h
	t.mu.Unlock()
}

// JoinPeer connects to another transport on the same network. Unlike a real
// transport there is no discovery: the peer must already be attached, and
// both sides' connection handlers fire before JoinPeer returns.
func (t *MemoryTransport) JoinPeer(_ context.Context, peer crypto.PublicKey) error {
	if t.isClosed() {
		return errors.New("transport is closed")
	}
	remote := t.network.lookup(peer)
	if remote == nil {
		return fmt.Errorf("no transport for peer %s", peer)
	}

	t.notifyConnection(&memoryMessenger{local: t, remote: remote})
	remote.notifyConnection(&memoryMessenger{local: remote, remote: t})
	return nil
}

func (t *MemoryTransport) notifyConnection(m Messenger) {
	t.mu.Lock()
	h := t.connHandler
	t.mu.Unlock()
	if h != nil {
		h(m)
	}
}

// Close detaches the transport from the network and stops dispatch.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.network.remove(t.pub)
	close(t.done)
	return nil
}

func (t *MemoryTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// dispatch delivers inbound payloads to the message handler, one at a time,
// off the sender's goroutine.
func (t *MemoryTransport) dispatch() {
	for {
		select {
		case <-t.done:
			return
		case in := <-t.inbox:
			t.mu.Lock()
			h := t.msgHandler
			t.mu.Unlock()
			if h != nil {
				h(in.from, in.payload)
			}
		}
	}
}

// memoryMessenger is one direction of an in-process connection.
type memoryMessenger struct {
	local  *MemoryTransport
	remote *MemoryTransport
}

func (m *memoryMessenger) Peer() PeerInfo {
	return PeerInfo{PublicKey: m.remote.pub}
}

func (m *memoryMessenger) Send(ctx context.Context, payload []byte) error {
	if m.remote.isClosed() {
		return errors.New("peer transport is closed")
	}
	select {
	case m.remote.inbox <- inbound{from: m.local.pub, payload: slices.Clone(payload)}:
		return nil
	case <-m.remote.done:
		return errors.New("peer transport is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memoryMessenger) Close() error {
	return nil
}
