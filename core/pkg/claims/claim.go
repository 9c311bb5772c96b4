// Package claims implements C7: the claim lattice. Claims are arena-stored
// by content-derived ID (Design Notes §9: arena-of-nodes-by-ID rather than
// a pointer graph) and compose via typed edges. Status lights are always
// derived, never stored authoritatively — §4.4's rules run on read.
//
// Grounded on the teacher's pkg/proofgraph.Node (content-hash identity,
// parent-reference DAG shape, generalized here from a single execution
// chain to a lattice of typed claim-to-claim edges) and
// pkg/evidence.Registry (fail-closed requirement-checking pattern,
// generalized from evidence-contract verification to claim confidence
// and source-reliability evaluation).
package claims

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// TruthType is one of the six claim truth types of spec §3.
type TruthType string

const (
	TruthObservation TruthType = "observation"
	TruthInference   TruthType = "inference"
	TruthAssumption  TruthType = "assumption"
	TruthForecast    TruthType = "forecast"
	TruthNorm        TruthType = "norm"
	TruthConstraint  TruthType = "constraint"
)

// StatusLight is the derived traffic-light status of a claim.
type StatusLight string

const (
	StatusGreen  StatusLight = "green"
	StatusYellow StatusLight = "yellow"
	StatusRed    StatusLight = "red"
)

// Reliability is a Source's self-reported trust tier.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// Scope binds a claim to where, when, and under what qualifying context it
// holds (Open Question 2 decision: Where/When/Context triple).
type Scope struct {
	Where   string            `json:"where"`
	When    Window            `json:"when"`
	Context map[string]string `json:"context,omitempty"`
}

// Window is an RFC3339 half-open interval; Until nil means open-ended.
type Window struct {
	From  time.Time  `json:"from"`
	Until *time.Time `json:"until,omitempty"`
}

// Confidence carries the numeric score and the reasoning behind it.
type Confidence struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation,omitempty"`
}

// HalfLife is the TTL/decay descriptor owned by C9; claims carry it but do
// not interpret it themselves.
type HalfLife struct {
	Value          float64    `json:"value"`
	Unit           string     `json:"unit"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	RefreshTrigger string     `json:"refreshTrigger,omitempty"`
}

// Graph is the claim's typed-edge neighborhood, storing the IDs of
// related claims rather than pointers (arena-of-nodes-by-ID).
type Graph struct {
	DependsOn   []string `json:"dependsOn,omitempty"`
	Contradicts []string `json:"contradicts,omitempty"`
	Supersedes  string   `json:"supersedes,omitempty"`
	Patches     []string `json:"patches,omitempty"`
	Supports    []string `json:"supports,omitempty"`
}

// Source is a provider of evidence, belonging to exactly one correlation
// group.
type Source struct {
	SourceID        string      `json:"source_id"`
	Tier            int         `json:"tier"`
	CorrelationGroup string     `json:"correlation_group"`
	Domains         []string    `json:"domains,omitempty"`
	EvidenceCount   int         `json:"evidence_count"`
	RefreshCadence  string      `json:"refresh_cadence,omitempty"`
	Status          string      `json:"status"`
	Reliability     Reliability `json:"reliability"`
}

// Evidence is a single piece of evidence backing a claim.
type Evidence struct {
	ElementID       string    `json:"element_id"`
	Status          string    `json:"status"`
	Tier            int       `json:"tier"`
	EventTime       time.Time `json:"event_time"`
	IngestTime      time.Time `json:"ingest_time"`
	TTL             string    `json:"ttl"`
	SourceID        string    `json:"source_id"`
	Confidence      float64   `json:"confidence"`
	Signature       string    `json:"signature"`
	CorrelationGroup string   `json:"correlation_group"`
	Mode            string    `json:"mode"`
	Domain          string    `json:"domain,omitempty"`
}

// Validate enforces the Evidence Node invariant of spec §3: event_time
// must not be after ingest_time.
func (e Evidence) Validate() error {
	if e.EventTime.After(e.IngestTime) {
		return meshrr.New(meshrr.KindInputInvalid, "evidence: event_time after ingest_time").WithField("event_time")
	}
	return nil
}

// Claim is the Claim of spec §3. StatusLight is always derived (see
// DeriveStatusLight) and must never be set directly by callers outside
// this package's Recompute path.
type Claim struct {
	ClaimID          string      `json:"claim_id"`
	Statement        string      `json:"statement"`
	Scope            Scope       `json:"scope"`
	TruthType        TruthType   `json:"truthType"`
	Confidence       Confidence  `json:"confidence"`
	StatusLight      StatusLight `json:"statusLight"`
	Sources          []Source    `json:"sources"`
	Evidence         []Evidence  `json:"evidence,omitempty"`
	Owner            string      `json:"owner"`
	TimestampCreated time.Time   `json:"timestampCreated"`
	Version          string      `json:"version"`
	HalfLife         HalfLife    `json:"halfLife"`
	Graph            Graph       `json:"graph"`
	Seal             string      `json:"seal,omitempty"`
}

// Validate enforces the Claim invariants that are local to the claim
// itself (statement length, at least one source, a parseable semver
// version, and the perpetual-claim rule: halfLife.value=0 only legal for
// norm/constraint truth types).
func (c Claim) Validate() error {
	if len(strings.TrimSpace(c.Statement)) < 10 {
		return meshrr.New(meshrr.KindInputInvalid, "claim: statement must be at least 10 characters").WithField("statement")
	}
	if len(c.Sources) < 1 {
		return meshrr.New(meshrr.KindInputInvalid, "claim: at least one source required").WithField("sources")
	}
	if _, err := semver.NewVersion(c.Version); err != nil {
		return meshrr.Wrap(meshrr.KindInputInvalid, err, "claim: version must be valid semver").WithField("version")
	}
	if c.HalfLife.Value == 0 && c.TruthType != TruthNorm && c.TruthType != TruthConstraint {
		return meshrr.New(meshrr.KindInputInvalid,
			fmt.Sprintf("claim: perpetual half-life only allowed for norm/constraint claims, got %s", c.TruthType)).WithField("halfLife.value")
	}
	for _, e := range c.Evidence {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DeriveStatusLight implements §4.4's Status Light derivation rule.
// Policy packs may tighten thresholds per decision type but can never
// relax the structural rule: an unresolved contradiction always forces
// at most yellow/red.
func DeriveStatusLight(c Claim, thresholds Thresholds) StatusLight {
	hasContradiction := len(c.Graph.Contradicts) > 0
	hasHighReliabilitySource := false
	mixedReliability := false
	if len(c.Sources) > 0 {
		first := c.Sources[0].Reliability
		for _, s := range c.Sources {
			if s.Reliability == ReliabilityHigh {
				hasHighReliabilitySource = true
			}
			if s.Reliability != first {
				mixedReliability = true
			}
		}
	}

	if c.Confidence.Score < thresholds.Red {
		return StatusRed
	}
	if hasContradiction {
		// Structural rule: a contradiction forces at most yellow/red,
		// regardless of how a policy pack tunes the numeric thresholds.
		if c.Confidence.Score < thresholds.Yellow {
			return StatusRed
		}
		return StatusYellow
	}

	if c.Confidence.Score >= thresholds.Green && hasHighReliabilitySource {
		return StatusGreen
	}
	if c.Confidence.Score >= thresholds.Yellow || mixedReliability {
		return StatusYellow
	}
	return StatusRed
}

// Thresholds are the policy-pack-overridable numeric cutoffs behind
// DeriveStatusLight. DefaultThresholds matches §4.4's green/yellow
// boundary exactly.
type Thresholds struct {
	Green  float64
	Yellow float64
	Red    float64
}

// DefaultThresholds is green >= 0.80, yellow in [0.50, 0.80), red < 0.50.
var DefaultThresholds = Thresholds{Green: 0.80, Yellow: 0.50, Red: 0.50}

// Recompute derives and assigns c.StatusLight in place, returning the
// updated claim. This is the only sanctioned way to mutate StatusLight.
func Recompute(c Claim, thresholds Thresholds) Claim {
	c.StatusLight = DeriveStatusLight(c, thresholds)
	return c
}
