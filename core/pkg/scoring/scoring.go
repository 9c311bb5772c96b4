// Package scoring implements C10: the composite 0-100 Credibility Index,
// combining six weighted components under a signed scoring policy whose
// hash travels with every computed score (Open Question 3).
//
// Grounded on the teacher's pkg/trust.ComputeTrustScore (multi-component
// weighted score with a Breakdown map) for the component shape, and on
// pkg/trust.GetBadgeLevel/Leaderboard for the banding and deterministic-
// ranking idiom. The policy itself is a compiled CEL program rather than a
// hardcoded weighted sum, following the teacher's pkg/kernel.CELDPEvaluator
// pattern for "policy as data, compiled once, evaluated many times" —
// unlike CEL-DP v1 kernel-critical expressions, a scoring policy is
// explicitly non-kernel-critical (CELDPTierNonCritical) so float math is
// fine here.
package scoring

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

// Band is the credibility band a score falls into (spec §4.10).
type Band string

const (
	BandStable                Band = "stable"
	BandMinorDrift            Band = "minor_drift"
	BandElevatedRisk          Band = "elevated_risk"
	BandStructuralDegradation Band = "structural_degradation"
	BandCompromised           Band = "compromised"
)

// BandFor maps a 0-100 score to its band.
func BandFor(score float64) Band {
	switch {
	case score >= 95:
		return BandStable
	case score >= 85:
		return BandMinorDrift
	case score >= 70:
		return BandElevatedRisk
	case score >= 50:
		return BandStructuralDegradation
	default:
		return BandCompromised
	}
}

// Weights scales each of the six components before combination.
type Weights struct {
	TierIntegrity     float64 `json:"tier_integrity" yaml:"tier_integrity"`
	DriftPenalty      float64 `json:"drift_penalty" yaml:"drift_penalty"`
	CorrelationRisk   float64 `json:"correlation_risk" yaml:"correlation_risk"`
	QuorumMargin      float64 `json:"quorum_margin" yaml:"quorum_margin"`
	TTLExpiration     float64 `json:"ttl_expiration" yaml:"ttl_expiration"`
	ConfirmationBonus float64 `json:"confirmation_bonus" yaml:"confirmation_bonus"`
}

// DefaultWeights gives every component unit weight; tenants override via
// a signed policy bundle loaded through policyloader.
var DefaultWeights = Weights{
	TierIntegrity:     1,
	DriftPenalty:      1,
	CorrelationRisk:   1,
	QuorumMargin:      1,
	TTLExpiration:     1,
	ConfirmationBonus: 1,
}

// Components holds the six raw, unweighted contributions of spec §4.10's
// table. Each is computed by the helper functions below from the lattice
// snapshot, the quorum engine, and the drift detector.
type Components struct {
	TierIntegrity     float64 `json:"tier_integrity"`
	DriftPenalty      float64 `json:"drift_penalty"`
	CorrelationRisk   float64 `json:"correlation_risk"`
	QuorumMargin      float64 `json:"quorum_margin"`
	TTLExpiration     float64 `json:"ttl_expiration"`
	ConfirmationBonus float64 `json:"confirmation_bonus"`
}

// DefaultExpr is the scoring formula: a base of 100, plus the positive
// components, minus the penalty components, each scaled by its weight.
const DefaultExpr = `100.0 ` +
	`+ weights["tier_integrity"]*components["tier_integrity"] ` +
	`- weights["drift_penalty"]*components["drift_penalty"] ` +
	`- weights["correlation_risk"]*components["correlation_risk"] ` +
	`- weights["quorum_margin"]*components["quorum_margin"] ` +
	`- weights["ttl_expiration"]*components["ttl_expiration"] ` +
	`+ weights["confirmation_bonus"]*components["confirmation_bonus"]`

// Policy is a compiled, hash-identified scoring program. Hash covers both
// the CEL expression text and the weights, so a score's policy_hash field
// pins the exact formula that produced it.
type Policy struct {
	Expr    string  `json:"expr"`
	Weights Weights `json:"weights"`
	Hash    string  `json:"hash"`

	program cel.Program
}

// CompilePolicy compiles expr under the env's {weights, components} map
// variables and stamps the policy's content hash.
func CompilePolicy(expr string, weights Weights) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("weights", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("components", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("scoring: create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues.Err() != nil {
		return nil, fmt.Errorf("scoring: compile policy: %w", issues.Err())
	}

	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("scoring: build program: %w", err)
	}

	p := &Policy{Expr: expr, Weights: weights, program: prog}
	hash, err := canonicalize.Hash(struct {
		Expr    string  `json:"expr"`
		Weights Weights `json:"weights"`
	}{expr, weights})
	if err != nil {
		return nil, fmt.Errorf("scoring: hash policy: %w", err)
	}
	p.Hash = hash
	return p, nil
}

// DefaultPolicy compiles DefaultExpr with DefaultWeights.
func DefaultPolicy() (*Policy, error) {
	return CompilePolicy(DefaultExpr, DefaultWeights)
}

func weightsMap(w Weights) map[string]interface{} {
	return map[string]interface{}{
		"tier_integrity":     w.TierIntegrity,
		"drift_penalty":      w.DriftPenalty,
		"correlation_risk":   w.CorrelationRisk,
		"quorum_margin":      w.QuorumMargin,
		"ttl_expiration":     w.TTLExpiration,
		"confirmation_bonus": w.ConfirmationBonus,
	}
}

func componentsMap(c Components) map[string]interface{} {
	return map[string]interface{}{
		"tier_integrity":     c.TierIntegrity,
		"drift_penalty":      c.DriftPenalty,
		"correlation_risk":   c.CorrelationRisk,
		"quorum_margin":      c.QuorumMargin,
		"ttl_expiration":     c.TTLExpiration,
		"confirmation_bonus": c.ConfirmationBonus,
	}
}

// Result is one tenant's computed credibility index, bound to the policy
// that produced it.
type Result struct {
	TenantID   string     `json:"tenant_id"`
	Score      float64    `json:"score"`
	Band       Band       `json:"band"`
	Components Components `json:"components"`
	PolicyHash string     `json:"policy_hash"`
	ComputedAt time.Time  `json:"computed_at"`
}

// Score evaluates components under policy and clamps the result to [0,100].
func Score(tenantID string, components Components, policy *Policy, clock func() time.Time) (Result, error) {
	out, _, err := policy.program.Eval(map[string]interface{}{
		"weights":    weightsMap(policy.Weights),
		"components": componentsMap(components),
	})
	if err != nil {
		return Result{}, fmt.Errorf("scoring: evaluate policy: %w", err)
	}
	val, ok := out.Value().(float64)
	if !ok {
		return Result{}, fmt.Errorf("scoring: policy did not evaluate to a double")
	}
	if val < 0 {
		val = 0
	}
	if val > 100 {
		val = 100
	}

	return Result{
		TenantID:   tenantID,
		Score:      val,
		Band:       BandFor(val),
		Components: components,
		PolicyHash: policy.Hash,
		ComputedAt: clock(),
	}, nil
}

// DriftSeverityWeight implements spec §4.10's green/yellow/red drift
// penalty weights (0.01 / 0.5 / 3.0). Reuses claims.StatusLight as the
// shared three-color severity vocabulary rather than a second enum.
func DriftSeverityWeight(s claims.StatusLight) float64 {
	switch s {
	case claims.StatusRed:
		return 3.0
	case claims.StatusYellow:
		return 0.5
	default:
		return 0.01
	}
}

// TierIntegrity is the fraction of cs with confidence at or above
// threshold, i.e. spec §4.10's "tier-weighted integrity" signal.
func TierIntegrity(cs []claims.Claim, threshold float64) float64 {
	if len(cs) == 0 {
		return 0
	}
	ok := 0
	for _, c := range cs {
		if c.Confidence.Score >= threshold {
			ok++
		}
	}
	return float64(ok) / float64(len(cs))
}

// DriftPenalty sums per-signal severity weights, with a tier-0 impact
// cascade multiplier applied by the caller (it knows the dependent count;
// this helper only totals the raw per-signal weights).
func DriftPenalty(signals []claims.StatusLight) float64 {
	var total float64
	for _, s := range signals {
		total += DriftSeverityWeight(s)
	}
	return total
}

// CorrelationRisk is a nonlinear penalty proportional to the square of
// the largest single-source fan-out, scaled by cross-region concentration
// (0..1, the fraction of authority held by the most concentrated region).
func CorrelationRisk(maxFanout int, crossRegionConcentration float64) float64 {
	f := float64(maxFanout)
	return (f * f / 100.0) * crossRegionConcentration
}

// QuorumMarginPenalty grows as N-K approaches zero; a non-positive margin
// (quorum not met) is treated as severe.
func QuorumMarginPenalty(n, k int) float64 {
	margin := n - k
	if margin <= 0 {
		return 5.0
	}
	return 1.0 / float64(margin+1)
}

// TTLExpirationPenalty is proportional to the count of past-TTL elements
// and how far past TTL they are on average.
func TTLExpirationPenalty(expiredCount int, avgOverdue time.Duration) float64 {
	if expiredCount == 0 {
		return 0
	}
	return float64(expiredCount) * (avgOverdue.Hours() / 24.0)
}

// ConfirmationBonus is spec §4.10's independent-confirmation bonus for a
// single claim: +1 for >=3 sources spanning >=2 correlation groups, +2 for
// >=3 groups.
func ConfirmationBonus(sourceCount, correlationGroups int) float64 {
	switch {
	case sourceCount >= 3 && correlationGroups >= 3:
		return 2
	case sourceCount >= 3 && correlationGroups >= 2:
		return 1
	default:
		return 0
	}
}
