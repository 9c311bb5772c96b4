// Package quorum implements C8: K-of-N agreement with correlation-group
// independence. A claim's sources must clear both a raw count threshold
// and a minimum number of independent correlation groups before the claim
// is considered adequately corroborated; dropping below K flips it to
// UNKNOWN and emits a ClaimFlip event.
//
// Grounded on the teacher's pkg/evidence.Registry CheckBefore/CheckAfter
// verdict shape (Satisfied/Missing/Verified), generalized here from
// evidence-contract requirement checking to K-of-N source-agreement
// verdicts.
package quorum

import "time"

// Tier names the three default quorum profiles of spec §4.7.
type Tier string

const (
	Tier0 Tier = "tier-0"
	Tier1 Tier = "tier-1"
	Tier2 Tier = "tier-2"
)

// RequiresTier0 describes how strongly a profile wants at least one
// Tier-0 source among the agreeing set.
type RequiresTier0 string

const (
	RequireTier0Yes         RequiresTier0 = "yes"
	RequireTier0Recommended RequiresTier0 = "recommended"
	RequireTier0No          RequiresTier0 = "no"
)

// Requirement is one tier's quorum profile: {N, K, min_correlation_groups,
// requires_tier0}.
type Requirement struct {
	MinN                 int
	K                     int
	MinCorrelationGroups int
	RequiresTier0        RequiresTier0
}

// DefaultRequirements implements §4.7's tier defaults exactly.
var DefaultRequirements = map[Tier]Requirement{
	Tier0: {MinN: 4, K: 3, MinCorrelationGroups: 2, RequiresTier0: RequireTier0Yes},
	Tier1: {MinN: 3, K: 2, MinCorrelationGroups: 2, RequiresTier0: RequireTier0Recommended},
	Tier2: {MinN: 2, K: 1, MinCorrelationGroups: 1, RequiresTier0: RequireTier0No},
}

// AgreeingSource is one source agreeing with a claim.
type AgreeingSource struct {
	SourceID         string
	CorrelationGroup string
	IsTier0          bool
}

// Verdict is the outcome of evaluating a claim's quorum.
type Verdict struct {
	ClaimID              string
	N                    int
	K                    int
	CorrelationGroups    int
	HasTier0             bool
	Satisfied            bool
	MissingReason        string
}

// Evaluate checks agreeing against requirement and returns a Verdict.
// Distinct source IDs are counted once; correlation groups are counted
// by distinct group name among the agreeing set.
func Evaluate(claimID string, agreeing []AgreeingSource, req Requirement) Verdict {
	seenSources := make(map[string]struct{}, len(agreeing))
	groups := make(map[string]struct{})
	hasTier0 := false

	for _, s := range agreeing {
		seenSources[s.SourceID] = struct{}{}
		groups[s.CorrelationGroup] = struct{}{}
		if s.IsTier0 {
			hasTier0 = true
		}
	}

	v := Verdict{
		ClaimID:           claimID,
		N:                 len(seenSources),
		K:                 req.K,
		CorrelationGroups: len(groups),
		HasTier0:          hasTier0,
		Satisfied:         true,
	}

	switch {
	case v.N < req.K:
		v.Satisfied = false
		v.MissingReason = "agreeing source count below K"
	case v.CorrelationGroups < req.MinCorrelationGroups:
		v.Satisfied = false
		v.MissingReason = "insufficient independent correlation groups"
	case req.RequiresTier0 == RequireTier0Yes && !hasTier0:
		v.Satisfied = false
		v.MissingReason = "requires at least one tier-0 source"
	}

	return v
}

// ClaimFlip is emitted when a previously-corroborated claim's quorum is no
// longer satisfied (agreeing count below K, too few correlation groups, or
// a required tier-0 source missing); the claim flips to UNKNOWN honestly
// rather than silently keeping a stale verdict.
type ClaimFlip struct {
	ClaimID   string    `json:"claim_id"`
	FlippedAt time.Time `json:"flipped_at"`
	PrevN     int       `json:"prev_n"`
	NewN      int       `json:"new_n"`
	Reason    string    `json:"reason"`
}

// DetectFlip compares a previous and current verdict and reports a
// ClaimFlip if prev was satisfied and current is not, whatever the
// current MissingReason.
func DetectFlip(claimID string, prev, current Verdict, clock func() time.Time) *ClaimFlip {
	if prev.Satisfied && !current.Satisfied {
		return &ClaimFlip{
			ClaimID:   claimID,
			FlippedAt: clock(),
			PrevN:     prev.N,
			NewN:      current.N,
			Reason:    current.MissingReason,
		}
	}
	return nil
}

// MaxAuthorityShare is §4.7's "max authority per region 40%" rule.
const MaxAuthorityShare = 0.40

// RegionAuthorityOK reports whether regionCount/total respects the
// max-40%-per-region rule. A zero total is vacuously OK (no authority
// granted anywhere yet).
func RegionAuthorityOK(regionCount, total int) bool {
	if total == 0 {
		return true
	}
	return float64(regionCount)/float64(total) <= MaxAuthorityShare
}
