package memorygraph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStoreAddAndGetNode(t *testing.T) {
	store := newTestSQLStore(t)

	n := Node{NodeID: "ep-1", Kind: NodeEpisode, Tags: []string{"tenant-a"}, Payload: map[string]interface{}{"k": "v"}}
	require.NoError(t, store.AddNode(n))

	got, ok, err := store.GetNode("ep-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, NodeEpisode, got.Kind)
	require.Equal(t, []string{"tenant-a"}, got.Tags)
}

func TestSQLStoreAddEdgeRequiresBothEndpoints(t *testing.T) {
	store := newTestSQLStore(t)
	require.NoError(t, store.AddNode(Node{NodeID: "ep-1", Kind: NodeEpisode}))

	err := store.AddEdge(Edge{From: "ep-1", To: "missing", Kind: EdgeProduced})
	require.Error(t, err)
}

func TestSQLStoreOutboundAndInboundEdges(t *testing.T) {
	store := newTestSQLStore(t)
	require.NoError(t, store.AddNode(Node{NodeID: "ep-1", Kind: NodeEpisode}))
	require.NoError(t, store.AddNode(Node{NodeID: "act-1", Kind: NodeAction}))
	require.NoError(t, store.AddEdge(Edge{From: "ep-1", To: "act-1", Kind: EdgeProduced}))

	out, err := store.OutboundEdges("ep-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "act-1", out[0].To)

	in, err := store.InboundEdges("act-1")
	require.NoError(t, err)
	require.Len(t, in, 1)
	require.Equal(t, "ep-1", in[0].From)
}

// TestSQLStoreConcurrentWritesIsolation mirrors the teacher's ACID-kill
// test shape: many concurrent writers, each inserting disjoint node IDs,
// verifying no writer's insert corrupts another's and the final count
// matches exactly what was attempted.
func TestSQLStoreConcurrentWritesIsolation(t *testing.T) {
	store := newTestSQLStore(t)

	const writers, perWriter = 10, 20
	var wg sync.WaitGroup
	errCh := make(chan error, writers*perWriter)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := store.AddNode(Node{
					NodeID: fmt.Sprintf("node-%d-%d", id, i),
					Kind:   NodeEvidence,
				})
				if err != nil {
					errCh <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent write error: %v", err)
	}

	count, err := store.NodeCount()
	require.NoError(t, err)
	require.Equal(t, writers*perWriter, count)
}

func TestSQLStoreDuplicateNodeIDRejected(t *testing.T) {
	store := newTestSQLStore(t)
	require.NoError(t, store.AddNode(Node{NodeID: "dup", Kind: NodeClaim}))
	require.Error(t, store.AddNode(Node{NodeID: "dup", Kind: NodeClaim}))
}
