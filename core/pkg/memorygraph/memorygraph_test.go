package memorygraph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/logstore"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	store, err := logstore.Open(t.TempDir())
	require.NoError(t, err)
	nodeLog := store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "memorygraph-nodes"})
	edgeLog := store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "memorygraph-edges"})
	return NewGraph(nodeLog, edgeLog)
}

func TestAddNodeAndGetNode(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddNode(Node{NodeID: "EP-1", Kind: NodeEpisode, CreatedAt: time.Unix(1000, 0)}))

	n, ok := g.GetNode("EP-1")
	require.True(t, ok)
	require.Equal(t, NodeEpisode, n.Kind)
}

func TestAddEdgeIndexesBothDirections(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddNode(Node{NodeID: "EP-1", Kind: NodeEpisode, CreatedAt: time.Unix(1000, 0)}))
	require.NoError(t, g.AddNode(Node{NodeID: "ACT-1", Kind: NodeAction, CreatedAt: time.Unix(1001, 0)}))
	require.NoError(t, g.AddEdge(Edge{From: "EP-1", To: "ACT-1", Kind: EdgeProduced, CreatedAt: time.Unix(1002, 0)}))

	out := g.OutboundEdges("EP-1")
	require.Len(t, out, 1)
	require.Equal(t, EdgeProduced, out[0].Kind)

	in := g.InboundEdges("ACT-1")
	require.Len(t, in, 1)
	require.Equal(t, "EP-1", in[0].From)
}

func TestOpenReplaysFromLogs(t *testing.T) {
	dir := t.TempDir()
	store, err := logstore.Open(dir)
	require.NoError(t, err)
	nodeLog := store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "memorygraph-nodes"})
	edgeLog := store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "memorygraph-edges"})

	g := NewGraph(nodeLog, edgeLog)
	require.NoError(t, g.AddNode(Node{NodeID: "EP-1", Kind: NodeEpisode, CreatedAt: time.Unix(1000, 0)}))
	require.NoError(t, g.AddNode(Node{NodeID: "DR-1", Kind: NodeDrift, CreatedAt: time.Unix(1001, 0)}))
	require.NoError(t, g.AddEdge(Edge{From: "EP-1", To: "DR-1", Kind: EdgeTriggered, CreatedAt: time.Unix(1002, 0)}))

	reopened, err := Open(nodeLog, edgeLog)
	require.NoError(t, err)

	n, ok := reopened.GetNode("DR-1")
	require.True(t, ok)
	require.Equal(t, NodeDrift, n.Kind)
	require.Len(t, reopened.InboundEdges("DR-1"), 1)
}

func TestNodeCountStreams(t *testing.T) {
	g := newTestGraph(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, g.AddNode(Node{NodeID: string(rune('A' + i)), Kind: NodeAction, CreatedAt: time.Unix(int64(1000+i), 0)}))
	}
	count, err := g.NodeCount()
	require.NoError(t, err)
	require.Equal(t, 5, count)
}
