package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestBandForBoundaries(t *testing.T) {
	require.Equal(t, BandStable, BandFor(97))
	require.Equal(t, BandMinorDrift, BandFor(90))
	require.Equal(t, BandElevatedRisk, BandFor(75))
	require.Equal(t, BandStructuralDegradation, BandFor(55))
	require.Equal(t, BandCompromised, BandFor(10))
}

func TestDefaultPolicyPerfectScoreIsStable(t *testing.T) {
	policy, err := DefaultPolicy()
	require.NoError(t, err)

	components := Components{
		TierIntegrity:     1,
		ConfirmationBonus: 2,
	}
	result, err := Score("tenant-a", components, policy, fixedClock())
	require.NoError(t, err)
	require.Equal(t, BandStable, result.Band)
	require.Equal(t, policy.Hash, result.PolicyHash)
}

func TestDefaultPolicyHeavyDriftPushesToCompromised(t *testing.T) {
	policy, err := DefaultPolicy()
	require.NoError(t, err)

	components := Components{
		DriftPenalty:    80,
		CorrelationRisk: 50,
	}
	result, err := Score("tenant-b", components, policy, fixedClock())
	require.NoError(t, err)
	require.Equal(t, float64(0), result.Score)
	require.Equal(t, BandCompromised, result.Band)
}

func TestPolicyHashChangesWithWeights(t *testing.T) {
	a, err := CompilePolicy(DefaultExpr, DefaultWeights)
	require.NoError(t, err)
	b, err := CompilePolicy(DefaultExpr, Weights{TierIntegrity: 2})
	require.NoError(t, err)
	require.NotEqual(t, a.Hash, b.Hash)
}

func TestTierIntegrityFraction(t *testing.T) {
	cs := []claims.Claim{
		{Confidence: claims.Confidence{Score: 0.9}},
		{Confidence: claims.Confidence{Score: 0.2}},
	}
	require.Equal(t, 0.5, TierIntegrity(cs, 0.5))
}

func TestDriftPenaltySumsSeverityWeights(t *testing.T) {
	total := DriftPenalty([]claims.StatusLight{claims.StatusRed, claims.StatusYellow, claims.StatusGreen})
	require.InDelta(t, 3.51, total, 0.0001)
}

func TestQuorumMarginPenaltySevereWhenNotMet(t *testing.T) {
	require.Equal(t, 5.0, QuorumMarginPenalty(1, 3))
	require.Less(t, QuorumMarginPenalty(5, 2), QuorumMarginPenalty(3, 2))
}

func TestConfirmationBonusThresholds(t *testing.T) {
	require.Equal(t, float64(0), ConfirmationBonus(2, 1))
	require.Equal(t, float64(1), ConfirmationBonus(3, 2))
	require.Equal(t, float64(2), ConfirmationBonus(4, 3))
}
