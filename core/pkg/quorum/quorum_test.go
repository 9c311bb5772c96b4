package quorum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateTier0RequiresTier0Source(t *testing.T) {
	agreeing := []AgreeingSource{
		{SourceID: "s1", CorrelationGroup: "g1"},
		{SourceID: "s2", CorrelationGroup: "g2"},
		{SourceID: "s3", CorrelationGroup: "g2"},
	}
	v := Evaluate("CLAIM-1", agreeing, DefaultRequirements[Tier0])
	require.False(t, v.Satisfied)
	require.Equal(t, "requires at least one tier-0 source", v.MissingReason)
}

func TestEvaluateTier2Passes(t *testing.T) {
	agreeing := []AgreeingSource{
		{SourceID: "s1", CorrelationGroup: "g1"},
		{SourceID: "s2", CorrelationGroup: "g2"},
	}
	v := Evaluate("CLAIM-2", agreeing, DefaultRequirements[Tier2])
	require.True(t, v.Satisfied)
}

func TestEvaluateInsufficientCorrelationGroups(t *testing.T) {
	agreeing := []AgreeingSource{
		{SourceID: "s1", CorrelationGroup: "g1", IsTier0: true},
		{SourceID: "s2", CorrelationGroup: "g1"},
		{SourceID: "s3", CorrelationGroup: "g1"},
		{SourceID: "s4", CorrelationGroup: "g1"},
	}
	v := Evaluate("CLAIM-3", agreeing, DefaultRequirements[Tier0])
	require.False(t, v.Satisfied)
	require.Equal(t, "insufficient independent correlation groups", v.MissingReason)
}

func TestDetectFlipOnlyFiresOnSatisfiedToUnsatisfied(t *testing.T) {
	prev := Verdict{Satisfied: true, N: 3}
	current := Verdict{Satisfied: false, N: 1, MissingReason: "agreeing source count below K"}
	flip := DetectFlip("CLAIM-4", prev, current, time.Now)
	require.NotNil(t, flip)
	require.Equal(t, 3, flip.PrevN)
	require.Equal(t, 1, flip.NewN)

	noFlip := DetectFlip("CLAIM-5", Verdict{Satisfied: false}, Verdict{Satisfied: true}, time.Now)
	require.Nil(t, noFlip)
}

func TestRegionAuthorityOK(t *testing.T) {
	require.True(t, RegionAuthorityOK(4, 10))
	require.False(t, RegionAuthorityOK(5, 10))
	require.True(t, RegionAuthorityOK(0, 0))
}
