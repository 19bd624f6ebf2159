package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/salsa20"
)

// Keystream is a synchronized keystream: one member of a set of N streams
// whose XOR is identically zero at every position. It holds the ordered
// list of pairwise shared secrets contributed to this participant. The list
// may contain duplicates; duplicate secrets cancel under XOR and are
// permitted.
//
// Read output is a pure function of (secrets, sequence number, length).
// A Keystream holds no mutable state and is safe for concurrent reads.
type Keystream struct {
	secrets []SharedKey
}

// NewKeystream creates a keystream over the given secrets. The slice is
// copied; the caller may zeroize its own copy afterwards.
func NewKeystream(secrets []SharedKey) *Keystream {
	held := make([]SharedKey, len(secrets))
	copy(held, secrets)
	return &Keystream{secrets: held}
}

// Read produces length bytes of keystream at the position named by the
// sequence number. Each secret keys an XSalsa20 stream whose 24-byte nonce
// is the big-endian sequence number in the low 8 bytes with the rest zero;
// the returned block is the XOR of all those streams.
//
// Reads never fail. Callers must never reuse a sequence number for
// different data: a repeated (sequence, length) read returns identical
// bytes, and XORing two payloads with the same keystream position is the
// classic two-time-pad break.
func (k *Keystream) Read(sequenceNumber uint64, length int) []byte {
	out := make([]byte, length)

	var nonce [24]byte
	binary.BigEndian.PutUint64(nonce[16:], sequenceNumber)

	for i := range k.secrets {
		// out = out XOR XSalsa20(secret, nonce); folding in place
		// accumulates the XOR of every secret's stream.
		key := [32]byte(k.secrets[i])
		salsa20.XORKeyStream(out, out, nonce[:], &key)
		Zero(key[:])
	}

	return out
}

// Zero wipes the held secrets. The keystream must not be read afterwards.
func (k *Keystream) Zero() {
	for i := range k.secrets {
		k.secrets[i].Zero()
	}
}
