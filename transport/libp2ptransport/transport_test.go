package libp2ptransport

import (
	"context"
	"testing"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
)

func TestPublicKeyConversionRoundTrip(t *testing.T) {
	_, pub, err := libp2pcrypto.GenerateKeyPair(libp2pcrypto.Ed25519, -1)
	require.NoError(t, err)

	pk, err := publicKeyFromLibp2p(pub)
	require.NoError(t, err)

	// Dialing by protocol public key must reach the host libp2p derives
	// the same peer ID for.
	peerID, err := peerIDFromPublicKey(pk)
	require.NoError(t, err)
	wantID, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	require.Equal(t, wantID, peerID)
}

func TestPublicKeyConversionRejectsNonEd25519(t *testing.T) {
	_, pub, err := libp2pcrypto.GenerateKeyPair(libp2pcrypto.RSA, 2048)
	require.NoError(t, err)

	_, err = publicKeyFromLibp2p(pub)
	require.Error(t, err)
}

func TestIdentityPersistsAcrossLoads(t *testing.T) {
	store := dssync.MutexWrap(ds.NewMapDatastore())
	ctx := context.Background()

	first, err := loadOrMakeIdentity(ctx, store)
	require.NoError(t, err)

	second, err := loadOrMakeIdentity(ctx, store)
	require.NoError(t, err)
	require.True(t, first.Equals(second))
}
