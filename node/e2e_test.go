package node_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/interfect/spartic/protocol"
	"github.com/interfect/spartic/testutil"
)

const group protocol.GroupID = 99

// popResult waits out delivery timing for one node's next round result.
func popResult(t *testing.T, tn *testutil.TestNode, groupID protocol.GroupID) []byte {
	t.Helper()
	var result []byte
	require.Eventually(t, func() bool {
		r, ok := tn.Node.Router().PopResult(groupID)
		if ok {
			result = r
		}
		return ok
	}, 10*time.Second, 5*time.Millisecond)
	return result
}

func TestThreeNodesManyRounds(t *testing.T) {
	nodes := testutil.NewTestNetwork(t, 3)
	testutil.CreateGroup(t, nodes, group)
	testutil.WaitRunning(t, nodes, group)

	// Each round a different participant speaks while the others send
	// cover traffic; every participant recovers the same block with no
	// way to tell which of them produced it.
	for round := 0; round < 6; round++ {
		speaker := round % len(nodes)
		want := testutil.PaddedBlock([]byte{0xd0 + byte(round)})

		for i, tn := range nodes {
			payload := testutil.PaddedBlock(nil)
			if i == speaker {
				copy(payload, want)
			}
			require.NoError(t, tn.Node.Router().Participate(group, payload))
		}

		for _, tn := range nodes {
			require.Equal(t, want, popResult(t, tn, group))
		}
	}
}

func TestRotationBetweenRounds(t *testing.T) {
	nodes := testutil.NewTestNetwork(t, 2)
	testutil.CreateGroup(t, nodes, group)
	testutil.WaitRunning(t, nodes, group)

	before := testutil.PaddedBlock([]byte("before rotation"))
	require.NoError(t, nodes[0].Node.Router().Participate(group, before))
	require.NoError(t, nodes[1].Node.Router().Participate(group, testutil.PaddedBlock(nil)))
	for _, tn := range nodes {
		require.Equal(t, before, popResult(t, tn, group))
	}

	for _, tn := range nodes {
		require.NoError(t, tn.Node.Router().RotateSecrets(group))
	}

	after := testutil.PaddedBlock([]byte("after rotation"))
	require.NoError(t, nodes[1].Node.Router().Participate(group, after))
	require.NoError(t, nodes[0].Node.Router().Participate(group, testutil.PaddedBlock(nil)))
	for _, tn := range nodes {
		require.Equal(t, after, popResult(t, tn, group))
	}
}

func TestTwoIndependentGroups(t *testing.T) {
	nodes := testutil.NewTestNetwork(t, 3)

	// Nodes 0 and 1 share one group; nodes 1 and 2 another. Node 1 is in
	// both, multiplexed over its single transport.
	left := []*testutil.TestNode{nodes[0], nodes[1]}
	right := []*testutil.TestNode{nodes[1], nodes[2]}
	testutil.CreateGroup(t, left, group)
	testutil.CreateGroup(t, right, group+1)
	testutil.WaitRunning(t, left, group)
	testutil.WaitRunning(t, right, group+1)

	leftMsg := testutil.PaddedBlock([]byte("left room"))
	require.NoError(t, nodes[0].Node.Router().Participate(group, leftMsg))
	require.NoError(t, nodes[1].Node.Router().Participate(group, testutil.PaddedBlock(nil)))

	rightMsg := testutil.PaddedBlock([]byte("right room"))
	require.NoError(t, nodes[2].Node.Router().Participate(group+1, rightMsg))
	require.NoError(t, nodes[1].Node.Router().Participate(group+1, testutil.PaddedBlock(nil)))

	for _, tn := range left {
		require.Equal(t, leftMsg, popResult(t, tn, group))
	}
	for _, tn := range right {
		require.Equal(t, rightMsg, popResult(t, tn, group+1))
	}
}
