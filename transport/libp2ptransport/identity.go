package libp2ptransport

import (
	"context"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
)

var identityKey = ds.NewKey("spartic/identity")

// loadOrMakeIdentity returns the node's long-term Ed25519 key from the
// datastore, generating and persisting a fresh one on first run.
func loadOrMakeIdentity(ctx context.Context, store ds.Datastore) (libp2pcrypto.PrivKey, error) {
	identityData, err := store.Get(ctx, identityKey)
	if errors.Is(err, ds.ErrNotFound) {
		privKey, _, err := libp2pcrypto.GenerateKeyPair(libp2pcrypto.Ed25519, -1)
		if err != nil {
			return nil, fmt.Errorf("could not generate identity: %w", err)
		}
		identityData, err = libp2pcrypto.MarshalPrivateKey(privKey)
		if err != nil {
			return nil, fmt.Errorf("could not serialize identity: %w", err)
		}
		if err := store.Put(ctx, identityKey, identityData); err != nil {
			return nil, fmt.Errorf("could not save identity: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("could not read identity: %w", err)
	}

	privKey, err := libp2pcrypto.UnmarshalPrivateKey(identityData)
	if err != nil {
		return nil, fmt.Errorf("could not decode stored identity: %w", err)
	}
	return privKey, nil
}
