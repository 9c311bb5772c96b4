// Package memorygraph implements C13: the typed in-memory graph of
// episodes, actions, drift, patches, evidence, and claims, backed by an
// append-only log for durability, with IRIS queries answered by streaming
// scans rather than full in-memory loads at scale.
//
// Grounded on the teacher's pkg/proofgraph — an in-memory DAG keyed by
// content hash, mutex-guarded, with heads tracking and a pluggable Store
// interface for persistence — generalized here from a single INTENT/
// ATTESTATION/EFFECT node taxonomy to the six node kinds and nine edge
// kinds of spec §3, and from proofgraph's own bespoke Store interface to
// our own pkg/logstore.Log for the append-only backing (replacing the
// teacher's stubbed pkg/memory.PostgresMemoryStore, which the teacher
// itself documents as "not part of the kernel TCB").
package memorygraph

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/logstore"
)

// NodeKind is one of the six typed node kinds of spec §3.
type NodeKind string

const (
	NodeEpisode  NodeKind = "EPISODE"
	NodeAction   NodeKind = "ACTION"
	NodeDrift    NodeKind = "DRIFT"
	NodePatch    NodeKind = "PATCH"
	NodeEvidence NodeKind = "EVIDENCE"
	NodeClaim    NodeKind = "CLAIM"
)

// EdgeKind is one of the nine typed edge kinds of spec §3.
type EdgeKind string

const (
	EdgeProduced         EdgeKind = "PRODUCED"
	EdgeTriggered        EdgeKind = "TRIGGERED"
	EdgeResolvedBy       EdgeKind = "RESOLVED_BY"
	EdgeEvidenceOf       EdgeKind = "EVIDENCE_OF"
	EdgeRecurrence       EdgeKind = "RECURRENCE"
	EdgeCaused           EdgeKind = "CAUSED"
	EdgeClaimSupports    EdgeKind = "CLAIM_SUPPORTS"
	EdgeClaimContradicts EdgeKind = "CLAIM_CONTRADICTS"
	EdgeSupersedes       EdgeKind = "SUPERSEDES"
)

// Node is one vertex. Tags supports RECALL's entity filter without a
// second index.
type Node struct {
	NodeID    string                 `json:"node_id"`
	Kind      NodeKind               `json:"kind"`
	Tags      []string               `json:"tags,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Edge is one directed, typed relation between two nodes.
type Edge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Kind      EdgeKind  `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Graph is the in-memory typed graph with append-only backing logs for
// nodes and edges, mirroring proofgraph.Graph's mutex-guarded map plus a
// persistence hook.
type Graph struct {
	mu        sync.RWMutex
	nodes     map[string]Node
	outEdges  map[string][]Edge // keyed by From
	inEdges   map[string][]Edge // keyed by To
	nodeLog   *logstore.Log
	edgeLog   *logstore.Log
	clock     func() time.Time
}

// NewGraph constructs an empty Graph backed by nodeLog/edgeLog.
func NewGraph(nodeLog, edgeLog *logstore.Log) *Graph {
	return &Graph{
		nodes:    make(map[string]Node),
		outEdges: make(map[string][]Edge),
		inEdges:  make(map[string][]Edge),
		nodeLog:  nodeLog,
		edgeLog:  edgeLog,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (g *Graph) WithClock(clock func() time.Time) *Graph {
	g.clock = clock
	return g
}

// Open replays nodeLog and edgeLog into a fresh in-memory Graph.
func Open(nodeLog, edgeLog *logstore.Log) (*Graph, error) {
	g := NewGraph(nodeLog, edgeLog)

	nit, err := nodeLog.Iterate()
	if err != nil {
		return nil, fmt.Errorf("memorygraph: open node log: %w", err)
	}
	defer nit.Close()
	for {
		var n Node
		if err := nit.Next(&n); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("memorygraph: replay nodes: %w", err)
		}
		g.nodes[n.NodeID] = n
	}

	eit, err := edgeLog.Iterate()
	if err != nil {
		return nil, fmt.Errorf("memorygraph: open edge log: %w", err)
	}
	defer eit.Close()
	for {
		var e Edge
		if err := eit.Next(&e); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("memorygraph: replay edges: %w", err)
		}
		g.outEdges[e.From] = append(g.outEdges[e.From], e)
		g.inEdges[e.To] = append(g.inEdges[e.To], e)
	}

	return g, nil
}

// AddNode appends n to the node log and adds it to the in-memory index.
func (g *Graph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = g.clock()
	}
	if err := g.nodeLog.Append(n); err != nil {
		return fmt.Errorf("memorygraph: append node: %w", err)
	}
	g.nodes[n.NodeID] = n
	return nil
}

// AddEdge appends e to the edge log and adds it to the in-memory index.
func (g *Graph) AddEdge(e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = g.clock()
	}
	if err := g.edgeLog.Append(e); err != nil {
		return fmt.Errorf("memorygraph: append edge: %w", err)
	}
	g.outEdges[e.From] = append(g.outEdges[e.From], e)
	g.inEdges[e.To] = append(g.inEdges[e.To], e)
	return nil
}

// GetNode retrieves a node by ID under a read lock (the "reader snapshot"
// discipline: every read goes through the lock rather than iterating the
// live map unguarded).
func (g *Graph) GetNode(nodeID string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[nodeID]
	return n, ok
}

// InboundEdges returns the edges pointing at nodeID.
func (g *Graph) InboundEdges(nodeID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.inEdges[nodeID]))
	copy(out, g.inEdges[nodeID])
	return out
}

// OutboundEdges returns the edges originating at nodeID.
func (g *Graph) OutboundEdges(nodeID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.outEdges[nodeID]))
	copy(out, g.outEdges[nodeID])
	return out
}

// Snapshot returns every node, for callers that genuinely need the full
// set (small-scale tooling, not the IRIS query path, which streams).
func (g *Graph) Snapshot() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// NodeCount streams the backing node log rather than counting the live
// map, satisfying the "streaming scan, not full load" SLO requirement
// even when called against a log larger than what's been replayed into
// memory.
func (g *Graph) NodeCount() (int, error) {
	return g.nodeLog.Count()
}
