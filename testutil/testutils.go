// Package testutil spins up in-process Spartic groups for tests:
// N nodes on one in-memory network, with helpers to create a group on every
// node and wait for it to come up.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/interfect/spartic/crypto"
	"github.com/interfect/spartic/node"
	"github.com/interfect/spartic/protocol"
	"github.com/interfect/spartic/transport"
)

// TestNode is one in-process participant.
type TestNode struct {
	Node      *node.Node
	Transport *transport.MemoryTransport
}

// PublicKey returns the participant's identity.
func (tn *TestNode) PublicKey() crypto.PublicKey {
	return tn.Transport.PublicKey()
}

// NewTestNetwork creates n nodes on a shared in-memory network with a fast
// drain tick, started and cleaned up with the test.
func NewTestNetwork(t *testing.T, n int) []*TestNode {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	net := transport.NewNetwork()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	nodes := make([]*TestNode, n)
	for i := range nodes {
		id, err := crypto.GenerateIdentity()
		require.NoError(t, err)
		tr := net.NewTransport(id)
		t.Cleanup(func() { tr.Close() })

		cfg := node.DefaultConfig()
		cfg.DrainInterval = node.Duration(5 * time.Millisecond)

		nd := node.New(log, cfg, tr)
		nd.Start(ctx)
		nodes[i] = &TestNode{Node: nd, Transport: tr}
	}
	return nodes
}

// CreateGroup creates the same group on every node, each listing the
// others as members.
func CreateGroup(t *testing.T, nodes []*TestNode, groupID protocol.GroupID) {
	t.Helper()
	for i, tn := range nodes {
		others := make([]crypto.PublicKey, 0, len(nodes)-1)
		for j, other := range nodes {
			if j != i {
				others = append(others, other.PublicKey())
			}
		}
		_, err := tn.Node.Router().CreateSession(context.Background(), groupID, others)
		require.NoError(t, err)
	}
}

// WaitRunning blocks until every node's session for the group has finished
// key exchange and will accept a contribution.
func WaitRunning(t *testing.T, nodes []*TestNode, groupID protocol.GroupID) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, tn := range nodes {
			if !tn.Node.Router().ReadyToParticipate(groupID) {
				return false
			}
		}
		return true
	}, 10*time.Second, 5*time.Millisecond)
}

// PaddedBlock zero-pads a payload to one block.
func PaddedBlock(payload []byte) []byte {
	block := make([]byte, protocol.BlockSize)
	copy(block, payload)
	return block
}
