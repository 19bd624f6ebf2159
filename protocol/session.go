package protocol

import (
	"crypto/hkdf"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"

	"github.com/interfect/spartic/crypto"
)

// Local-caller errors. These indicate misuse of the session API by the
// embedding application and never mutate session state.
var (
	// ErrNoCurrentRound is returned when participating before key exchange
	// has completed.
	ErrNoCurrentRound = errors.New("no current round to participate in")

	// ErrAlreadyParticipated is returned on a second participation in the
	// same round.
	ErrAlreadyParticipated = errors.New("already participated in the current round")

	// ErrWrongMessageSize is returned when the payload is not exactly one
	// block.
	ErrWrongMessageSize = errors.New("message must be exactly one block")

	// ErrNotAMember is returned when an inbound call names a peer outside
	// the session's membership. The router screens for this; hitting it is
	// a programming error in the embedding.
	ErrNotAMember = errors.New("peer is not a member of this session")

	// ErrRoundInProgress is returned by RotateSecrets when the current or
	// next round already holds blocks.
	ErrRoundInProgress = errors.New("cannot rotate secrets mid-round")
)

// Peer-protocol error texts, sent to the offending peer as ErrorMessages.
const (
	errTextDuplicateKey      = "public key already received"
	errTextUnacceptableRound = "block is for an unacceptable round"
	errTextWrongSizeBlock    = "block is the wrong size"
	errTextDuplicateBlock    = "block is already here"
)

// Session is the local participant's state machine for one group.
//
// On creation it generates one shared-key half per peer and queues it for
// delivery. Once every peer's half has arrived the keystream is built and
// rounds begin. Each round the participant masks a block with the keystream
// and broadcasts it; when its own block and all peers' blocks for the round
// are in, the XOR of all of them is appended to the results queue and the
// session moves on. Two rounds may be live at once, so a peer may run one
// round ahead without its blocks being dropped.
//
// Session is not safe for concurrent use; the router serializes access.
type Session struct {
	groupID GroupID

	// peers is the fixed membership, minus the local participant, in
	// byte-lexicographic order. All per-peer iteration uses this order so
	// every participant assembles identical secret lists and round sums.
	peers []crypto.PublicKey

	ourSharedKeys   map[crypto.PublicKey]crypto.SharedKey
	theirSharedKeys map[crypto.PublicKey]*crypto.SharedKey

	// keystream is nil until the final peer's key arrives.
	keystream *crypto.Keystream

	currentRound *SessionRound
	nextRound    *SessionRound

	queues  map[crypto.PublicKey][]Message
	results [][]byte
}

// NewSession creates the local participant's session for a group whose
// other members are otherPubkeys. The set must be non-empty and free of
// duplicates, and must not include the local participant's own key (the
// session has no way to check the latter).
//
// A key message for every peer is queued immediately; the caller drains the
// queues onto the transport.
func NewSession(groupID GroupID, otherPubkeys []crypto.PublicKey) (*Session, error) {
	if len(otherPubkeys) == 0 {
		return nil, errors.New("a group needs at least one other participant")
	}

	peers := slices.Clone(otherPubkeys)
	slices.SortFunc(peers, func(a, b crypto.PublicKey) int {
		return slices.Compare(a[:], b[:])
	})
	if len(slices.Compact(slices.Clone(peers))) != len(peers) {
		return nil, errors.New("duplicate participant public key")
	}

	s := &Session{
		groupID:         groupID,
		peers:           peers,
		ourSharedKeys:   make(map[crypto.PublicKey]crypto.SharedKey, len(peers)),
		theirSharedKeys: make(map[crypto.PublicKey]*crypto.SharedKey, len(peers)),
		nextRound:       newSessionRound(0),
		queues:          make(map[crypto.PublicKey][]Message, len(peers)),
	}

	for _, p := range peers {
		half, err := crypto.GenerateSharedKey()
		if err != nil {
			return nil, fmt.Errorf("could not generate shared key half: %w", err)
		}
		s.ourSharedKeys[p] = half
		s.theirSharedKeys[p] = nil
		s.queues[p] = []Message{KeyMessage{GroupID: groupID, SharedKey: half}}
	}

	return s, nil
}

// GroupID returns the group this session belongs to.
func (s *Session) GroupID() GroupID {
	return s.groupID
}

// Peers returns the other participants in the session's stable order.
func (s *Session) Peers() []crypto.PublicKey {
	return slices.Clone(s.peers)
}

// IsMember reports whether pk is one of the session's other participants.
func (s *Session) IsMember(pk crypto.PublicKey) bool {
	_, ok := s.queues[pk]
	return ok
}

// Running reports whether key exchange has completed and rounds are live.
func (s *Session) Running() bool {
	return s.keystream != nil
}

// ReceiveKey accepts a peer's shared-key half. When the final half arrives
// the keystream is constructed and the first round opens. A duplicate half
// is answered with a queued error and otherwise ignored.
func (s *Session) ReceiveKey(from crypto.PublicKey, sharedKey crypto.SharedKey) error {
	if !s.IsMember(from) {
		return ErrNotAMember
	}

	if s.theirSharedKeys[from] != nil {
		s.enqueue(from, ErrorMessage{Text: errTextDuplicateKey})
		return nil
	}
	held := sharedKey
	s.theirSharedKeys[from] = &held

	for _, p := range s.peers {
		if s.theirSharedKeys[p] == nil {
			return nil
		}
	}

	s.buildKeystream()
	s.advanceRound()
	return nil
}

// buildKeystream assembles the secrets list from both halves of every pair,
// in peer order. Each pair's two halves appear verbatim in both members'
// lists, which is what makes the streams cancel.
func (s *Session) buildKeystream() {
	secrets := make([]crypto.SharedKey, 0, 2*len(s.peers))
	for _, p := range s.peers {
		secrets = append(secrets, s.ourSharedKeys[p], *s.theirSharedKeys[p])
	}
	s.keystream = crypto.NewKeystream(secrets)
	for i := range secrets {
		secrets[i].Zero()
	}
}

// ReceiveBlock accepts a peer's masked block for a round. Blocks for the
// current round or the next are stored; anything else, a wrong-size block,
// or a second block from the same peer in one round is answered with a
// queued error and discarded.
func (s *Session) ReceiveBlock(from crypto.PublicKey, sequenceNumber uint64, block []byte) error {
	if !s.IsMember(from) {
		return ErrNotAMember
	}

	var round *SessionRound
	switch {
	case s.currentRound != nil && s.currentRound.SequenceNumber == sequenceNumber:
		round = s.currentRound
	case s.nextRound.SequenceNumber == sequenceNumber:
		round = s.nextRound
	default:
		s.enqueue(from, ErrorMessage{Text: errTextUnacceptableRound})
		return nil
	}

	if len(block) != BlockSize {
		s.enqueue(from, ErrorMessage{Text: errTextWrongSizeBlock})
		return nil
	}

	if _, ok := round.TheirBlocks[from]; ok {
		s.enqueue(from, ErrorMessage{Text: errTextDuplicateBlock})
		return nil
	}

	round.TheirBlocks[from] = slices.Clone(block)
	s.maybeCompleteRound()
	return nil
}

// ReadyToParticipate reports whether the session will accept a
// ParticipateInRound call right now.
func (s *Session) ReadyToParticipate() bool {
	return s.currentRound != nil && s.currentRound.OurBlock == nil
}

// ParticipateInRound contributes message to the current round. The message
// must be exactly one block; participants with nothing to say contribute a
// zero block. The message is masked with the keystream at the round's
// sequence number and queued for every peer.
//
// Failures are local-caller errors and leave the session unchanged.
func (s *Session) ParticipateInRound(message []byte) error {
	if s.currentRound == nil {
		return ErrNoCurrentRound
	}
	if s.currentRound.OurBlock != nil {
		return ErrAlreadyParticipated
	}
	if len(message) != BlockSize {
		return ErrWrongMessageSize
	}

	masked := s.keystream.Read(s.currentRound.SequenceNumber, BlockSize)
	crypto.XorInplace(masked, message)
	s.currentRound.OurBlock = masked

	for _, p := range s.peers {
		s.enqueue(p, BlockMessage{
			GroupID:        s.groupID,
			SequenceNumber: s.currentRound.SequenceNumber,
			Block:          masked,
		})
	}

	s.maybeCompleteRound()
	return nil
}

// maybeCompleteRound closes the current round once the local block and
// every peer's block are in.
func (s *Session) maybeCompleteRound() {
	if s.currentRound == nil || s.currentRound.OurBlock == nil {
		return
	}
	if len(s.currentRound.TheirBlocks) != len(s.peers) {
		return
	}
	s.advanceRound()
}

// advanceRound emits the finished round's XOR-combined result, if any, and
// promotes the buffered next round. The keystream contributions cancel in
// the sum, leaving exactly the XOR of every participant's message.
func (s *Session) advanceRound() {
	if s.currentRound != nil {
		result := slices.Clone(s.currentRound.OurBlock)
		for _, p := range s.peers {
			crypto.XorInplace(result, s.currentRound.TheirBlocks[p])
		}
		s.results = append(s.results, result)
	}

	s.currentRound = s.nextRound
	s.nextRound = newSessionRound(s.currentRound.SequenceNumber + 1)
}

// RotateSecrets ratchets every stored shared-key half forward through HKDF
// and rebuilds the keystream, refreshing the pseudorandom budget of a
// long-lived session. It may only be called at a round boundary, before
// anyone has contributed to the current round, and every participant must
// rotate at the same boundary or the streams stop cancelling.
func (s *Session) RotateSecrets() error {
	if s.keystream == nil {
		return ErrNoCurrentRound
	}
	if s.currentRound.OurBlock != nil || len(s.currentRound.TheirBlocks) != 0 ||
		len(s.nextRound.TheirBlocks) != 0 {
		return ErrRoundInProgress
	}

	rotate := func(old crypto.SharedKey) (crypto.SharedKey, error) {
		raw, err := hkdf.Key(sha256.New, old[:], nil, "spartic secret rotation", crypto.SharedKeySize)
		if err != nil {
			return crypto.SharedKey{}, err
		}
		fresh, err := crypto.NewSharedKeyFromBytes(raw)
		crypto.Zero(raw)
		return fresh, err
	}

	for _, p := range s.peers {
		ours, err := rotate(s.ourSharedKeys[p])
		if err != nil {
			return fmt.Errorf("rotating key for %s: %w", p, err)
		}
		theirs, err := rotate(*s.theirSharedKeys[p])
		if err != nil {
			return fmt.Errorf("rotating key for %s: %w", p, err)
		}
		s.ourSharedKeys[p] = ours
		*s.theirSharedKeys[p] = theirs
	}

	s.keystream.Zero()
	s.buildKeystream()
	return nil
}

// ResendKey re-queues the local shared-key half for a peer, for use when
// the peer reports it had no session for the group when our key arrived.
// It is a no-op once the peer's own half is here, since by then the peer's
// session demonstrably exists. The re-sent copy goes out on the next drain,
// so retransmission is paced rather than ping-ponged.
func (s *Session) ResendKey(peer crypto.PublicKey) {
	if !s.IsMember(peer) || s.theirSharedKeys[peer] != nil {
		return
	}
	s.enqueue(peer, KeyMessage{GroupID: s.groupID, SharedKey: s.ourSharedKeys[peer]})
}

// enqueue appends a message to a peer's outbound FIFO.
func (s *Session) enqueue(peer crypto.PublicKey, m Message) {
	s.queues[peer] = append(s.queues[peer], m)
}

// PopMessage removes and returns the oldest queued outbound message for a
// peer. It returns false when the queue is empty or the peer is unknown.
func (s *Session) PopMessage(peer crypto.PublicKey) (Message, bool) {
	q := s.queues[peer]
	if len(q) == 0 {
		return nil, false
	}
	m := q[0]
	s.queues[peer] = q[1:]
	return m, true
}

// QueuedMessages returns how many outbound messages are waiting for a peer.
func (s *Session) QueuedMessages(peer crypto.PublicKey) int {
	return len(s.queues[peer])
}

// PopResult removes and returns the oldest recovered round result, the XOR
// of every participant's contributed message for that round.
func (s *Session) PopResult() ([]byte, bool) {
	if len(s.results) == 0 {
		return nil, false
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r, true
}

// PendingResults returns how many recovered rounds are waiting to be read.
func (s *Session) PendingResults() int {
	return len(s.results)
}

// CurrentSequenceNumber returns the live round's sequence number. It
// returns false before key exchange completes.
func (s *Session) CurrentSequenceNumber() (uint64, bool) {
	if s.currentRound == nil {
		return 0, false
	}
	return s.currentRound.SequenceNumber, true
}
