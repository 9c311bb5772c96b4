// Package drift implements C11: typed drift signals over sealed episodes
// and lattice state, fingerprint deduplication with recurrence tracking,
// and the recurrence escalation rule (DRT-001).
//
// Grounded on the teacher's pkg/escalation.Manager — a mutex-guarded
// in-memory registry keyed by ID, with a clock field for deterministic
// tests and a content-hash stamped onto each emitted record. Signal
// fingerprinting reuses pkg/canonicalize the same way the teacher's
// escalation receipts hash a reduced struct rather than the full record.
package drift

import (
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

// Type is the drift signal's driftType, per spec §3.
type Type string

const (
	TypeTime           Type = "time"
	TypeFreshness      Type = "freshness"
	TypeFallback       Type = "fallback"
	TypeBypass         Type = "bypass"
	TypeVerify         Type = "verify"
	TypeOutcome        Type = "outcome"
	TypeFanout         Type = "fanout"
	TypeContention     Type = "contention"
	TypeContradiction  Type = "contradiction"
	TypeStaleReference Type = "stale_reference"
)

// RecommendedPatchType is the drift-to-patch mapping's target, per §4.11.
type RecommendedPatchType string

const (
	PatchDTEChange          RecommendedPatchType = "dte_change"
	PatchTTLChange          RecommendedPatchType = "ttl_change"
	PatchCacheBundleChange  RecommendedPatchType = "cache_bundle_change"
	PatchRoutingChange      RecommendedPatchType = "routing_change"
	PatchVerificationChange RecommendedPatchType = "verification_change"
	PatchActionScopeTighten RecommendedPatchType = "action_scope_tighten"
	PatchManualReview       RecommendedPatchType = "manual_review"
)

// RecommendedPatch is the per-driftType default mapping of §4.11. Types
// not listed (fallback, outcome, fanout, contention, stale_reference)
// default to manual review, the conservative fallback when no specific
// automated remediation is known.
var RecommendedPatch = map[Type]RecommendedPatchType{
	TypeTime:          PatchDTEChange,
	TypeFreshness:     PatchTTLChange,
	TypeVerify:        PatchVerificationChange,
	TypeBypass:        PatchManualReview,
	TypeContradiction: PatchRoutingChange,
}

// PatchTypeFor returns the recommended patch type for driftType, falling
// back to manual review for any type without a specific mapping.
func PatchTypeFor(driftType Type) RecommendedPatchType {
	if p, ok := RecommendedPatch[driftType]; ok {
		return p
	}
	return PatchManualReview
}

// Fingerprint identifies recurring drift independent of which episode it
// was detected in.
type Fingerprint struct {
	Key     string `json:"key"`
	Version int    `json:"version"`
}

// AlgorithmVersion is folded into the fingerprint key so a future change
// to the fingerprinting algorithm doesn't collide with older signals.
const AlgorithmVersion = 1

// ComputeFingerprint computes fp.key = sha256_canonical({driftType,
// minimized-evidence-signature, algorithmVersion})[:8], per §4.11.
func ComputeFingerprint(driftType Type, evidenceSignature string) (Fingerprint, error) {
	h, err := canonicalize.Hash(struct {
		DriftType         Type   `json:"drift_type"`
		EvidenceSignature string `json:"evidence_signature"`
		AlgorithmVersion  int    `json:"algorithm_version"`
	}{driftType, evidenceSignature, AlgorithmVersion})
	if err != nil {
		return Fingerprint{}, err
	}
	digest := h[len(canonicalize.HashPrefix):]
	if len(digest) > 8 {
		digest = digest[:8]
	}
	return Fingerprint{Key: digest, Version: AlgorithmVersion}, nil
}

// Signal is one emitted drift signal, per spec §3.
type Signal struct {
	DriftID              string               `json:"drift_id"`
	EpisodeID            string               `json:"episode_id"`
	DriftType            Type                 `json:"drift_type"`
	Severity             claims.StatusLight   `json:"severity"`
	DetectedAt           time.Time            `json:"detected_at"`
	EvidenceRefs         []string             `json:"evidence_refs"`
	RecommendedPatchType RecommendedPatchType  `json:"recommended_patch_type"`
	Fingerprint          Fingerprint           `json:"fingerprint"`
	Notes                string                `json:"notes,omitempty"`
}

// TimeSeverity implements §4.11's `time` driftType rule: green within
// deadline, yellow at up to 1.25x over, red beyond that.
func TimeSeverity(actual, deadline time.Duration) claims.StatusLight {
	switch {
	case actual <= deadline:
		return claims.StatusGreen
	case float64(actual) <= 1.25*float64(deadline):
		return claims.StatusYellow
	default:
		return claims.StatusRed
	}
}

// FreshnessSeverity implements §4.11's `freshness` driftType rule: yellow
// if TTL was exceeded while the evidence was in use, red if the stale
// evidence is Tier-0.
func FreshnessSeverity(ttlExceeded bool, tier int) claims.StatusLight {
	if !ttlExceeded {
		return claims.StatusGreen
	}
	if tier == 0 {
		return claims.StatusRed
	}
	return claims.StatusYellow
}

// VerifySeverity implements §4.11's `verify` driftType rule: yellow on a
// single verification failure, red on Tier-0 or a repeated failure.
func VerifySeverity(failureCount, tier int) claims.StatusLight {
	if failureCount == 0 {
		return claims.StatusGreen
	}
	if tier == 0 || failureCount > 1 {
		return claims.StatusRed
	}
	return claims.StatusYellow
}

// RecurrenceWindow and RecurrenceThreshold implement DRT-001: a
// fingerprint repeating at least RecurrenceThreshold times within
// RecurrenceWindow escalates to delegation review.
const (
	RecurrenceWindow    = 14 * 24 * time.Hour
	RecurrenceThreshold = 3
)
