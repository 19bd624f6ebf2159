package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/interfect/spartic/crypto"
	"github.com/interfect/spartic/protocol"
	"github.com/interfect/spartic/transport"
)

// Router demultiplexes transport traffic onto per-group sessions and drives
// session outbound queues back onto the transport. All session access is
// serialized under the router's lock, so transport callbacks may arrive
// from any goroutine.
type Router struct {
	log       *slog.Logger
	transport transport.Transport

	mu         sync.Mutex
	sessions   map[protocol.GroupID]*protocol.Session
	messengers map[crypto.PublicKey]transport.Messenger
}

// Error texts for traffic the router refuses to deliver: the group has no
// session here, or the sender is not one of its members.
const (
	errTextUnexpectedKey   = "unexpected key"
	errTextUnexpectedBlock = "unexpected block"
)

// New creates a router over the given transport and registers its handlers.
func New(log *slog.Logger, tr transport.Transport) *Router {
	r := &Router{
		log:        log,
		transport:  tr,
		sessions:   make(map[protocol.GroupID]*protocol.Session),
		messengers: make(map[crypto.PublicKey]transport.Messenger),
	}
	tr.OnConnection(r.handleConnection)
	tr.OnMessage(r.handleMessage)
	return r
}

// PublicKey returns the local participant's identity.
func (r *Router) PublicKey() crypto.PublicKey {
	return r.transport.PublicKey()
}

// CreateSession instantiates the local participant's session for a group
// and schedules connection attempts to every member. The session's queued
// key messages go out on subsequent drain ticks as connections come up.
func (r *Router) CreateSession(ctx context.Context, groupID protocol.GroupID, otherPubkeys []crypto.PublicKey) (*protocol.Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[groupID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("session for group %d already exists", groupID)
	}

	session, err := protocol.NewSession(groupID, otherPubkeys)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.sessions[groupID] = session
	peers := session.Peers()
	r.mu.Unlock()

	// JoinPeer may run the connection handler before returning, and that
	// handler takes the lock, so connections are requested without it.
	for _, peer := range peers {
		if err := r.transport.JoinPeer(ctx, peer); err != nil {
			r.log.Warn("could not schedule connection to peer",
				"group", groupID, "peer", peer.String(), "err", err)
		}
	}

	return session, nil
}

// Session returns the session for a group, or nil. The returned handle is
// safe to use directly only from a single-threaded embedding; concurrent
// embeddings go through the router's wrapper methods.
func (r *Router) Session(groupID protocol.GroupID) *protocol.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[groupID]
}

// Groups returns the group IDs with live sessions.
func (r *Router) Groups() []protocol.GroupID {
	r.mu.Lock()
	defer r.mu.Unlock()
	groups := make([]protocol.GroupID, 0, len(r.sessions))
	for id := range r.sessions {
		groups = append(groups, id)
	}
	return groups
}

// Participate contributes a message block to a group's current round.
func (r *Router) Participate(groupID protocol.GroupID, message []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[groupID]
	if !ok {
		return fmt.Errorf("no session for group %d", groupID)
	}
	return session.ParticipateInRound(message)
}

// ReadyToParticipate reports whether a group's session will accept a
// Participate call right now.
func (r *Router) ReadyToParticipate(groupID protocol.GroupID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[groupID]
	return ok && session.ReadyToParticipate()
}

// PopResult removes and returns a group's oldest recovered round result.
func (r *Router) PopResult(groupID protocol.GroupID) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[groupID]
	if !ok {
		return nil, false
	}
	return session.PopResult()
}

// RotateSecrets ratchets a group's pairwise secrets at a round boundary.
func (r *Router) RotateSecrets(groupID protocol.GroupID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[groupID]
	if !ok {
		return fmt.Errorf("no session for group %d", groupID)
	}
	return session.RotateSecrets()
}

// SessionStatus is a point-in-time snapshot of one session, for status
// surfaces.
type SessionStatus struct {
	GroupID        protocol.GroupID `json:"group_id"`
	Running        bool             `json:"running"`
	SequenceNumber uint64           `json:"sequence_number"`
	Ready          bool             `json:"ready_to_participate"`
	PendingResults int              `json:"pending_results"`
	Peers          []string         `json:"peers"`
	ConnectedPeers int              `json:"connected_peers"`
}

// Status snapshots a group's session. The second return is false when the
// group has no session.
func (r *Router) Status(groupID protocol.GroupID) (SessionStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[groupID]
	if !ok {
		return SessionStatus{}, false
	}

	status := SessionStatus{
		GroupID:        groupID,
		Running:        session.Running(),
		Ready:          session.ReadyToParticipate(),
		PendingResults: session.PendingResults(),
	}
	status.SequenceNumber, _ = session.CurrentSequenceNumber()
	for _, p := range session.Peers() {
		status.Peers = append(status.Peers, p.String())
		if _, connected := r.messengers[p]; connected {
			status.ConnectedPeers++
		}
	}
	return status, true
}

// SendSessionMessages drains one group's outbound queues onto the
// transport. Messages for peers without a live messenger stay queued.
func (r *Router) SendSessionMessages(groupID protocol.GroupID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[groupID]; ok {
		r.drainSessionLocked(session)
	}
}

// SendAllSessionMessages drains every session's outbound queues. The
// node's pacing loop calls this on a tick.
func (r *Router) SendAllSessionMessages() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		r.drainSessionLocked(session)
	}
}

func (r *Router) drainSessionLocked(session *protocol.Session) {
	for _, peer := range session.Peers() {
		messenger, ok := r.messengers[peer]
		if !ok {
			continue
		}
		for {
			m, ok := session.PopMessage(peer)
			if !ok {
				break
			}
			if err := r.sendMessage(messenger, m); err != nil {
				// The connection is gone; the transport will hand us a
				// fresh messenger when the peer comes back.
				r.log.Warn("send to peer failed, dropping messenger",
					"peer", peer.String(), "err", err)
				delete(r.messengers, peer)
				break
			}
		}
	}
}

func (r *Router) sendMessage(messenger transport.Messenger, m protocol.Message) error {
	payload, err := protocol.EncodeMessage(m)
	if err != nil {
		return fmt.Errorf("encoding outbound message: %w", err)
	}
	return messenger.Send(context.Background(), payload)
}

// handleConnection records a peer's messenger. Queued traffic for the peer
// goes out on the next drain tick.
func (r *Router) handleConnection(m transport.Messenger) {
	peer := m.Peer().PublicKey
	r.log.Debug("peer connected", "peer", peer.String())

	r.mu.Lock()
	r.messengers[peer] = m
	r.mu.Unlock()
}

// handleMessage decodes an inbound payload and dispatches it to the session
// for its group. Payloads for unknown groups, or from peers outside the
// group's membership, are answered with a wire error and never delivered:
// a session must only ever hear from its own members.
func (r *Router) handleMessage(from crypto.PublicKey, payload []byte) {
	m, err := protocol.DecodeMessage(payload)
	if err != nil {
		r.log.Warn("undecodable message from peer", "peer", from.String(), "err", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg := m.(type) {
	case protocol.KeyMessage:
		session := r.sessionForLocked(msg.GroupID, from)
		if session == nil {
			r.replyErrorLocked(from, errTextUnexpectedKey)
			return
		}
		if err := session.ReceiveKey(from, msg.SharedKey); err != nil {
			r.log.Error("session rejected key", "group", msg.GroupID, "err", err)
		}

	case protocol.BlockMessage:
		session := r.sessionForLocked(msg.GroupID, from)
		if session == nil {
			r.replyErrorLocked(from, errTextUnexpectedBlock)
			return
		}
		if err := session.ReceiveBlock(from, msg.SequenceNumber, msg.Block); err != nil {
			r.log.Error("session rejected block", "group", msg.GroupID, "err", err)
		}

	case protocol.ErrorMessage:
		// Informational; a peer disagreed with something we sent.
		r.log.Warn("peer reported protocol error", "peer", from.String(), "text", msg.Text)

		// A peer that had no session yet bounced our key half. Re-queue it
		// for sessions still in setup; the drain tick paces the retry.
		if msg.Text == errTextUnexpectedKey {
			for _, session := range r.sessions {
				if session.IsMember(from) {
					session.ResendKey(from)
				}
			}
		}
	}
}

// sessionForLocked returns the session for a group only if the peer is one
// of its members.
func (r *Router) sessionForLocked(groupID protocol.GroupID, peer crypto.PublicKey) *protocol.Session {
	session, ok := r.sessions[groupID]
	if !ok || !session.IsMember(peer) {
		return nil
	}
	return session
}

func (r *Router) replyErrorLocked(peer crypto.PublicKey, text string) {
	messenger, ok := r.messengers[peer]
	if !ok {
		return
	}
	if err := r.sendMessage(messenger, protocol.ErrorMessage{Text: text}); err != nil {
		r.log.Warn("could not send error to peer", "peer", peer.String(), "err", err)
	}
}
