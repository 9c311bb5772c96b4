package memorygraph

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// QueryType names one of the five IRIS query shapes from spec §3.
type QueryType string

const (
	QueryWhy         QueryType = "WHY"
	QueryWhatDrifted QueryType = "WHAT_DRIFTED"
	QueryWhatChanged QueryType = "WHAT_CHANGED"
	QueryRecall      QueryType = "RECALL"
	QueryStatus      QueryType = "STATUS"
)

// Why answers "why did episode X produce the action/decision it did" by
// walking inbound edges to the episode and the claims/evidence that
// supported it, rather than scanning the whole graph.
func (g *Graph) Why(episodeID string) ([]Node, error) {
	ep, ok := g.GetNode(episodeID)
	if !ok {
		return nil, fmt.Errorf("memorygraph: episode %s not found", episodeID)
	}

	out := []Node{ep}
	for _, e := range g.InboundEdges(episodeID) {
		if e.Kind != EdgeProduced && e.Kind != EdgeClaimSupports && e.Kind != EdgeEvidenceOf {
			continue
		}
		if n, ok := g.GetNode(e.From); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// DriftFingerprintKey is the Payload key a DRIFT node's fingerprint (the
// stable hash drift.ComputeFingerprint derives from driftType and a
// normalized evidence signature) is stored under, since memorygraph.Node
// carries no dedicated fingerprint field.
const DriftFingerprintKey = "fingerprint"

// DriftGroup is one fingerprint's worth of DRIFT nodes — the unit
// WHAT_DRIFTED projects per spec §4.13, carrying how many times this
// fingerprint has recurred so callers can prioritize the worst offenders.
type DriftGroup struct {
	Fingerprint string `json:"fingerprint"`
	Recurrence  int    `json:"recurrence"`
	Nodes       []Node `json:"nodes"`
}

// WhatDrifted streams the node log (constant memory, per the 10k-node
// <60s SLO), projects every DRIFT node, groups them by fingerprint, and
// sorts groups by recurrence count descending — the most frequently
// repeating drift first, per spec §4.13. DRIFT nodes with no fingerprint
// recorded (e.g. older data predating fingerprinting) form their own
// group keyed by the empty string.
func (g *Graph) WhatDrifted() ([]DriftGroup, error) {
	groups := make(map[string]*DriftGroup)
	var order []string

	err := g.streamNodes(func(n Node) {
		if n.Kind != NodeDrift {
			return
		}
		fp, _ := n.Payload[DriftFingerprintKey].(string)
		grp, ok := groups[fp]
		if !ok {
			grp = &DriftGroup{Fingerprint: fp}
			groups[fp] = grp
			order = append(order, fp)
		}
		grp.Nodes = append(grp.Nodes, n)
		grp.Recurrence++
	})
	if err != nil {
		return nil, err
	}

	out := make([]DriftGroup, 0, len(order))
	for _, fp := range order {
		out = append(out, *groups[fp])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Recurrence > out[j].Recurrence })
	return out, nil
}

// WhatChanged returns every PATCH node between two episode boundaries,
// identified by CreatedAt ordering rather than an episode-sequence field,
// since episodes are appended in causal order.
func (g *Graph) WhatChanged(fromEpisodeID, toEpisodeID string) ([]Node, error) {
	from, ok := g.GetNode(fromEpisodeID)
	if !ok {
		return nil, fmt.Errorf("memorygraph: episode %s not found", fromEpisodeID)
	}
	to, ok := g.GetNode(toEpisodeID)
	if !ok {
		return nil, fmt.Errorf("memorygraph: episode %s not found", toEpisodeID)
	}
	since, until := from.CreatedAt, to.CreatedAt
	if until.Before(since) {
		since, until = until, since
	}

	var out []Node
	err := g.streamNodes(func(n Node) {
		if n.Kind != NodePatch {
			return
		}
		if n.CreatedAt.Before(since) || n.CreatedAt.After(until) {
			return
		}
		out = append(out, n)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Recall streams the node log for every node tagged with entity, newer
// than since — the tag-based index avoids a second structure to keep in
// sync with the append-only logs.
func (g *Graph) Recall(entity string, since time.Time) ([]Node, error) {
	var out []Node
	err := g.streamNodes(func(n Node) {
		if n.CreatedAt.Before(since) {
			return
		}
		for _, tag := range n.Tags {
			if tag == entity {
				out = append(out, n)
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Status reports per-kind node counts via the streaming count path, plus
// the most recent node of each kind seen during the scan.
type Status struct {
	CountByKind map[NodeKind]int
	LatestKind  map[NodeKind]Node
}

// Status performs a single streaming pass over the node log and tallies
// counts and the newest node per kind, rather than one Count() call per
// kind (which would re-scan the file NodeKind-many times).
func (g *Graph) Status() (Status, error) {
	st := Status{
		CountByKind: make(map[NodeKind]int),
		LatestKind:  make(map[NodeKind]Node),
	}
	err := g.streamNodes(func(n Node) {
		st.CountByKind[n.Kind]++
		if cur, ok := st.LatestKind[n.Kind]; !ok || n.CreatedAt.After(cur.CreatedAt) {
			st.LatestKind[n.Kind] = n
		}
	})
	return st, err
}

// streamNodes performs one constant-memory pass over the node log via
// logstore.Iterator, invoking fn per record — the shared primitive behind
// every IRIS query that needs more than a point lookup.
func (g *Graph) streamNodes(fn func(Node)) error {
	it, err := g.nodeLog.Iterate()
	if err != nil {
		return fmt.Errorf("memorygraph: stream nodes: %w", err)
	}
	defer it.Close()

	for {
		var n Node
		if err := it.Next(&n); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("memorygraph: stream nodes: %w", err)
		}
		fn(n)
	}
}
