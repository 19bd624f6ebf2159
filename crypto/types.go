package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// PublicKeySize is the length in bytes of a participant public key.
	PublicKeySize = 32

	// SharedKeySize is the length in bytes of a pairwise shared secret.
	SharedKeySize = 32

	// SeedSize is the length in bytes of an identity key derivation seed.
	SeedSize = ed25519.SeedSize
)

// PublicKey identifies a participant. It is the raw 32-byte Ed25519 public
// key of the participant's long-term transport identity. Public keys compare
// by byte value and are usable directly as map keys.
type PublicKey [PublicKeySize]byte

// NewPublicKeyFromBytes creates a PublicKey from a byte slice.
func NewPublicKeyFromBytes(data []byte) (PublicKey, error) {
	var pk PublicKey
	if len(data) != PublicKeySize {
		return pk, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	copy(pk[:], data)
	return pk, nil
}

// NewPublicKeyFromString creates a PublicKey from a hex-encoded string.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return PublicKey{}, err
	}
	return NewPublicKeyFromBytes(rawBytes)
}

// Bytes returns the public key as a byte slice.
func (pk PublicKey) Bytes() []byte {
	return pk[:]
}

// String returns a hex-encoded representation of the public key.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// SharedKey is one half of a pair's keying material: a uniformly random
// 32-byte value generated by one participant of the pair and sent to the
// other. Both halves key the pair's keystream contribution, so neither
// participant can choose the contribution alone.
type SharedKey [SharedKeySize]byte

// NewSharedKeyFromBytes creates a SharedKey from a byte slice.
func NewSharedKeyFromBytes(data []byte) (SharedKey, error) {
	var sk SharedKey
	if len(data) != SharedKeySize {
		return sk, fmt.Errorf("shared key must be %d bytes, got %d", SharedKeySize, len(data))
	}
	copy(sk[:], data)
	return sk, nil
}

// GenerateSharedKey returns a fresh uniformly random shared key.
func GenerateSharedKey() (SharedKey, error) {
	var sk SharedKey
	if _, err := rand.Read(sk[:]); err != nil {
		return sk, fmt.Errorf("could not generate shared key: %w", err)
	}
	return sk, nil
}

// Zero overwrites the shared key in place.
func (sk *SharedKey) Zero() {
	Zero(sk[:])
}

// Identity is a long-term signing identity whose public half doubles as the
// participant's protocol-level name. The transport authenticates it at
// connect time.
type Identity struct {
	priv ed25519.PrivateKey
}

// GenerateIdentity creates a new random identity.
func GenerateIdentity() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("could not generate identity: %w", err)
	}
	return &Identity{priv: priv}, nil
}

// NewIdentityFromSeed derives an identity deterministically from a 32-byte seed.
func NewIdentityFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != SeedSize {
		return nil, errors.New("identity seed has the wrong size")
	}
	return &Identity{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the participant public key for this identity.
func (id *Identity) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], id.priv.Public().(ed25519.PublicKey))
	return pk
}

// PrivateKeyBytes exposes the raw Ed25519 private key for handing to the
// transport. Callers must not log or persist it outside the keystore.
func (id *Identity) PrivateKeyBytes() []byte {
	return id.priv
}
