package router

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/interfect/spartic/crypto"
	"github.com/interfect/spartic/protocol"
	"github.com/interfect/spartic/transport"
	"github.com/stretchr/testify/require"
)

const testGroup protocol.GroupID = 42

type testNode struct {
	transport *transport.MemoryTransport
	router    *Router
}

func newTestNodes(t *testing.T, n int) []*testNode {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	net := transport.NewNetwork()

	nodes := make([]*testNode, n)
	for i := range nodes {
		id, err := crypto.GenerateIdentity()
		require.NoError(t, err)
		tr := net.NewTransport(id)
		t.Cleanup(func() { tr.Close() })
		nodes[i] = &testNode{transport: tr, router: New(log, tr)}
	}
	return nodes
}

// createSessions sets up the same group on every node.
func createSessions(t *testing.T, nodes []*testNode, groupID protocol.GroupID) {
	t.Helper()
	for i, node := range nodes {
		others := make([]crypto.PublicKey, 0, len(nodes)-1)
		for j, other := range nodes {
			if j != i {
				others = append(others, other.transport.PublicKey())
			}
		}
		_, err := node.router.CreateSession(context.Background(), groupID, others)
		require.NoError(t, err)
	}
}

// tickUntil drains all routers repeatedly until the condition holds.
func tickUntil(t *testing.T, nodes []*testNode, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, node := range nodes {
			node.router.SendAllSessionMessages()
		}
		return cond()
	}, 5*time.Second, 5*time.Millisecond)
}

func TestTwoNodesExchangeOneRound(t *testing.T) {
	nodes := newTestNodes(t, 2)
	createSessions(t, nodes, testGroup)

	tickUntil(t, nodes, func() bool {
		return nodes[0].router.ReadyToParticipate(testGroup) &&
			nodes[1].router.ReadyToParticipate(testGroup)
	})

	hello := make([]byte, protocol.BlockSize)
	copy(hello, "hello")
	require.NoError(t, nodes[0].router.Participate(testGroup, hello))
	require.NoError(t, nodes[1].router.Participate(testGroup, make([]byte, protocol.BlockSize)))

	for _, node := range nodes {
		var result []byte
		tickUntil(t, nodes, func() bool {
			r, ok := node.router.PopResult(testGroup)
			if ok {
				result = r
			}
			return ok
		})
		require.Equal(t, hello, result)
	}
}

func TestFourNodesSingleSender(t *testing.T) {
	nodes := newTestNodes(t, 4)
	createSessions(t, nodes, testGroup)

	tickUntil(t, nodes, func() bool {
		for _, node := range nodes {
			if !node.router.ReadyToParticipate(testGroup) {
				return false
			}
		}
		return true
	})

	msg := make([]byte, protocol.BlockSize)
	for i := range msg {
		msg[i] = 0x42
	}
	for i, node := range nodes {
		payload := make([]byte, protocol.BlockSize)
		if i == 2 {
			copy(payload, msg)
		}
		require.NoError(t, node.router.Participate(testGroup, payload))
	}

	for _, node := range nodes {
		var result []byte
		tickUntil(t, nodes, func() bool {
			r, ok := node.router.PopResult(testGroup)
			if ok {
				result = r
			}
			return ok
		})
		require.Equal(t, msg, result)
	}
}

func TestMultipleGroupsOverOneConnection(t *testing.T) {
	nodes := newTestNodes(t, 2)
	createSessions(t, nodes, testGroup)
	createSessions(t, nodes, testGroup+1)

	tickUntil(t, nodes, func() bool {
		for _, g := range []protocol.GroupID{testGroup, testGroup + 1} {
			for _, node := range nodes {
				if !node.router.ReadyToParticipate(g) {
					return false
				}
			}
		}
		return true
	})

	for gi, g := range []protocol.GroupID{testGroup, testGroup + 1} {
		payload := make([]byte, protocol.BlockSize)
		payload[0] = byte(gi + 1)
		require.NoError(t, nodes[0].router.Participate(g, payload))
		require.NoError(t, nodes[1].router.Participate(g, make([]byte, protocol.BlockSize)))

		for _, node := range nodes {
			var result []byte
			tickUntil(t, nodes, func() bool {
				r, ok := node.router.PopResult(g)
				if ok {
					result = r
				}
				return ok
			})
			require.Equal(t, byte(gi+1), result[0])
		}
	}
}

func TestCrossGroupIsolation(t *testing.T) {
	nodes := newTestNodes(t, 3)
	a, b, c := nodes[0], nodes[1], nodes[2]

	// a and b share a group; c is an outsider with a connection to a.
	pair := []*testNode{a, b}
	createSessions(t, pair, testGroup)
	require.NoError(t, c.transport.JoinPeer(context.Background(), a.transport.PublicKey()))

	// c sends a key for the group it is not a member of.
	_, err := c.router.CreateSession(context.Background(), testGroup,
		[]crypto.PublicKey{a.transport.PublicKey()})
	require.NoError(t, err)
	c.router.SendAllSessionMessages()

	// a's session must never hear from c, and c gets told.
	tickUntil(t, nodes, func() bool {
		status, ok := a.router.Status(testGroup)
		return ok && status.Running
	})

	status, ok := a.router.Status(testGroup)
	require.True(t, ok)
	require.Equal(t, uint64(0), status.SequenceNumber)
	require.True(t, status.Running)
}

func TestStatusSnapshot(t *testing.T) {
	nodes := newTestNodes(t, 2)
	createSessions(t, nodes, testGroup)

	status, ok := nodes[0].router.Status(testGroup)
	require.True(t, ok)
	require.False(t, status.Running)
	require.Len(t, status.Peers, 1)

	_, ok = nodes[0].router.Status(testGroup + 9)
	require.False(t, ok)

	tickUntil(t, nodes, func() bool {
		status, _ := nodes[0].router.Status(testGroup)
		return status.Running && status.ConnectedPeers == 1
	})
}

func TestCreateSessionTwiceFails(t *testing.T) {
	nodes := newTestNodes(t, 2)
	createSessions(t, nodes, testGroup)
	_, err := nodes[0].router.CreateSession(context.Background(), testGroup,
		[]crypto.PublicKey{nodes[1].transport.PublicKey()})
	require.Error(t, err)
}

func TestParticipateWithoutSession(t *testing.T) {
	nodes := newTestNodes(t, 2)
	require.Error(t, nodes[0].router.Participate(testGroup, make([]byte, protocol.BlockSize)))
	_, ok := nodes[0].router.PopResult(testGroup)
	require.False(t, ok)
}
