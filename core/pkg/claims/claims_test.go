package claims

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validClaim(id string) Claim {
	return Claim{
		ClaimID:          id,
		Statement:        "This is a testable statement about the world.",
		Scope:            Scope{Where: "global", When: Window{From: time.Now()}},
		TruthType:        TruthObservation,
		Confidence:       Confidence{Score: 0.9},
		Sources:          []Source{{SourceID: "src-1", Reliability: ReliabilityHigh}},
		Owner:            "owner-1",
		TimestampCreated: time.Now(),
		Version:          "1.0.0",
		HalfLife:         HalfLife{Value: 24, Unit: "hours"},
	}
}

func TestValidateRejectsShortStatement(t *testing.T) {
	c := validClaim("CLAIM-2026-0001")
	c.Statement = "too short"
	require.Error(t, c.Validate())
}

func TestValidateRejectsPerpetualNonNormClaim(t *testing.T) {
	c := validClaim("CLAIM-2026-0002")
	c.HalfLife.Value = 0
	require.Error(t, c.Validate())

	c.TruthType = TruthNorm
	require.NoError(t, c.Validate())
}

func TestDeriveStatusLightGreen(t *testing.T) {
	c := validClaim("CLAIM-2026-0003")
	require.Equal(t, StatusGreen, DeriveStatusLight(c, DefaultThresholds))
}

func TestDeriveStatusLightContradictionNeverGreen(t *testing.T) {
	c := validClaim("CLAIM-2026-0004")
	c.Graph.Contradicts = []string{"CLAIM-2026-9999"}
	require.NotEqual(t, StatusGreen, DeriveStatusLight(c, DefaultThresholds))
}

func TestDeriveStatusLightLowConfidenceRed(t *testing.T) {
	c := validClaim("CLAIM-2026-0005")
	c.Confidence.Score = 0.2
	require.Equal(t, StatusRed, DeriveStatusLight(c, DefaultThresholds))
}

func TestLatticePutRejectsDuplicateID(t *testing.T) {
	l := NewLattice(DefaultThresholds)
	c := validClaim("CLAIM-2026-0006")
	_, err := l.Put(c)
	require.NoError(t, err)
	_, err = l.Put(c)
	require.Error(t, err)
}

func TestLatticeContradictionIsSymmetric(t *testing.T) {
	l := NewLattice(DefaultThresholds)
	a := validClaim("CLAIM-2026-0007")
	_, err := l.Put(a)
	require.NoError(t, err)

	b := validClaim("CLAIM-2026-0008")
	b.Graph.Contradicts = []string{"CLAIM-2026-0007"}
	_, err = l.Put(b)
	require.NoError(t, err)

	got, err := l.Get("CLAIM-2026-0007")
	require.NoError(t, err)
	require.Contains(t, got.Graph.Contradicts, "CLAIM-2026-0008")
	require.NotEqual(t, StatusGreen, got.StatusLight)
}

func TestSupersedePreservesOriginal(t *testing.T) {
	l := NewLattice(DefaultThresholds)
	original := validClaim("CLAIM-2026-0009")
	_, err := l.Put(original)
	require.NoError(t, err)

	next := validClaim("CLAIM-2026-0010")
	updated, err := l.Supersede("CLAIM-2026-0009", next, time.Now)
	require.NoError(t, err)
	require.Equal(t, "CLAIM-2026-0009", updated.Graph.Supersedes)

	orig, err := l.Get("CLAIM-2026-0009")
	require.NoError(t, err)
	require.Equal(t, "This is a testable statement about the world.", orig.Statement)
}
