package protocol

import "github.com/interfect/spartic/crypto"

// SessionRound holds the state of one block exchange: the round's sequence
// number, the block each peer has delivered so far, and the local
// participant's own masked block once it has participated. All transitions
// are driven by the owning Session.
type SessionRound struct {
	// SequenceNumber is the round's index, monotonically increasing from 0.
	// It doubles as the keystream position for the round.
	SequenceNumber uint64

	// OurBlock is the local participant's keystream-masked block, nil until
	// the participant joins the round.
	OurBlock []byte

	// TheirBlocks maps each remote participant to the block it delivered
	// for this round. Keyed only by session members, each at most once.
	TheirBlocks map[crypto.PublicKey][]byte
}

func newSessionRound(sequenceNumber uint64) *SessionRound {
	return &SessionRound{
		SequenceNumber: sequenceNumber,
		TheirBlocks:    make(map[crypto.PublicKey][]byte),
	}
}
