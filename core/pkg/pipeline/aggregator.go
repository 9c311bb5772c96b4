package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
)

// ValidatorLocator resolves a validator's region and correlation group,
// needed to group ACCEPT counts per spec §4.6/§4.7.
type ValidatorLocator func(validatorNodeID string) (region, correlationGroup string)

// Snapshot is one aggregate record written to aggregates.log.
type Snapshot struct {
	ClaimID           string         `json:"claim_id"`
	RegionCounts      map[string]int `json:"region_counts"`
	CorrelationGroups []string       `json:"correlation_groups"`
	TotalAccepts      int            `json:"total_accepts"`
	SnapshotHash      string         `json:"snapshot_hash"`
	CreatedAt         time.Time      `json:"created_at"`
}

type claimState struct {
	regionCounts map[string]int
	groupsSeen   map[string]struct{}
}

// Aggregator counts ACCEPTs per claim, grouped by validator region and
// correlation group, and emits a snapshot to aggregates.log on every
// accepted validation.
type Aggregator struct {
	Log    *logstore.Log
	Locate ValidatorLocator
	Clock  func() time.Time

	mu    sync.Mutex
	state map[string]*claimState
}

// NewAggregator constructs an Aggregator bound to its own aggregates.log.
func NewAggregator(log *logstore.Log, locate ValidatorLocator) *Aggregator {
	return &Aggregator{
		Log:    log,
		Locate: locate,
		Clock:  time.Now,
		state:  make(map[string]*claimState),
	}
}

// Record folds one validation into claimID's running tally and, on
// ACCEPT, appends a fresh snapshot to aggregates.log.
func (a *Aggregator) Record(claimID string, v Validation) (*Snapshot, error) {
	if v.Verdict != VerdictAccept {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.state[claimID]
	if !ok {
		st = &claimState{regionCounts: make(map[string]int), groupsSeen: make(map[string]struct{})}
		a.state[claimID] = st
	}

	region, group := a.Locate(v.ValidatorNodeID)
	st.regionCounts[region]++
	st.groupsSeen[group] = struct{}{}

	snap := Snapshot{
		ClaimID:      claimID,
		RegionCounts: copyCounts(st.regionCounts),
		CreatedAt:    a.Clock(),
	}
	for g := range st.groupsSeen {
		snap.CorrelationGroups = append(snap.CorrelationGroups, g)
	}
	sort.Strings(snap.CorrelationGroups)
	for _, n := range st.regionCounts {
		snap.TotalAccepts += n
	}

	hash, err := canonicalize.HashWithBlankedField(&snap, "snapshot_hash")
	if err != nil {
		return nil, err
	}
	snap.SnapshotHash = hash

	if err := a.Log.Append(snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
