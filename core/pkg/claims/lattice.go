package claims

import (
	"sync"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// Lattice is the arena-of-claims-by-ID store (Design Notes §9). It never
// reuses a claim_id and never mutates a claim's content in place —
// Supersede creates a new version and preserves the original.
type Lattice struct {
	mu         sync.RWMutex
	claims     map[string]Claim
	thresholds Thresholds
}

// NewLattice constructs an empty lattice using the given status-light
// thresholds (pass claims.DefaultThresholds absent a policy-pack override).
func NewLattice(thresholds Thresholds) *Lattice {
	return &Lattice{claims: make(map[string]Claim), thresholds: thresholds}
}

// Put inserts a brand-new claim (claim_id must not already exist),
// deriving its status light and checking contradictions against the
// existing lattice at ingest time.
func (l *Lattice) Put(c Claim) (Claim, error) {
	if err := c.Validate(); err != nil {
		return Claim{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.claims[c.ClaimID]; exists {
		return Claim{}, meshrr.New(meshrr.KindInputInvalid, "claim: claim_id already in use, ids are never reused").WithField("claim_id")
	}

	for _, depID := range c.Graph.DependsOn {
		if _, ok := l.claims[depID]; !ok {
			return Claim{}, meshrr.New(meshrr.KindInputInvalid, "claim: dependsOn references unknown claim "+depID).WithField("graph.dependsOn")
		}
	}

	c = Recompute(c, l.thresholds)
	l.claims[c.ClaimID] = c
	l.detectContradictions(c.ClaimID)
	return c, nil
}

// Get returns a snapshot copy of the claim, or an error if unknown.
func (l *Lattice) Get(claimID string) (Claim, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.claims[claimID]
	if !ok {
		return Claim{}, meshrr.New(meshrr.KindInputInvalid, "claim: unknown claim_id "+claimID)
	}
	return c, nil
}

// detectContradictions is called at ingest time (§4.7: "Contradiction
// detection triggers at ingest"). A claim's Graph.Contradicts list is
// treated as symmetric: this mirrors new contradiction edges back onto
// their targets so status-light recompute sees both sides.
func (l *Lattice) detectContradictions(claimID string) {
	c := l.claims[claimID]
	for _, otherID := range c.Graph.Contradicts {
		other, ok := l.claims[otherID]
		if !ok {
			continue
		}
		if !containsString(other.Graph.Contradicts, claimID) {
			other.Graph.Contradicts = append(other.Graph.Contradicts, claimID)
		}
		other = Recompute(other, l.thresholds)
		l.claims[otherID] = other
	}
}

func containsString(in []string, s string) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}

// Supersede creates a new version of original, carrying a supersedes edge
// back to it. The original is preserved unchanged (§3 invariant:
// "supersedes creates new version, original preserved"). Contradictions
// targeting the original are NOT automatically resolved — spec §4.7:
// "contradictions can only be resolved by superseding one side", which
// this method performs by severing the new claim's view of the old
// contradiction (the original claim keeps its own Contradicts entry,
// since it is immutable).
func (l *Lattice) Supersede(originalID string, next Claim, clock func() time.Time) (Claim, error) {
	l.mu.Lock()
	original, ok := l.claims[originalID]
	l.mu.Unlock()
	if !ok {
		return Claim{}, meshrr.New(meshrr.KindInputInvalid, "claim: cannot supersede unknown claim_id "+originalID)
	}

	next.Graph.Supersedes = originalID
	next.Graph.Contradicts = nil // a new version starts clean of the old dispute
	next.TimestampCreated = clock()
	_ = original

	return l.Put(next)
}

// Claims returns a snapshot of every claim currently in the lattice.
func (l *Lattice) Claims() []Claim {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Claim, 0, len(l.claims))
	for _, c := range l.claims {
		out = append(out, c)
	}
	return out
}
