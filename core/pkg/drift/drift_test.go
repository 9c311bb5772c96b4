package drift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

func TestComputeFingerprintStableAcrossCalls(t *testing.T) {
	a, err := ComputeFingerprint(TypeFreshness, "evidence-sig-1")
	require.NoError(t, err)
	b, err := ComputeFingerprint(TypeFreshness, "evidence-sig-1")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a.Key, 8)
}

func TestComputeFingerprintDiffersByDriftType(t *testing.T) {
	a, err := ComputeFingerprint(TypeFreshness, "evidence-sig-1")
	require.NoError(t, err)
	b, err := ComputeFingerprint(TypeVerify, "evidence-sig-1")
	require.NoError(t, err)
	require.NotEqual(t, a.Key, b.Key)
}

func TestPatchTypeForKnownAndUnknown(t *testing.T) {
	require.Equal(t, PatchDTEChange, PatchTypeFor(TypeTime))
	require.Equal(t, PatchManualReview, PatchTypeFor(TypeFanout))
}

func TestTimeSeverityThresholds(t *testing.T) {
	require.Equal(t, claims.StatusGreen, TimeSeverity(5*time.Second, 10*time.Second))
	require.Equal(t, claims.StatusYellow, TimeSeverity(12*time.Second, 10*time.Second))
	require.Equal(t, claims.StatusRed, TimeSeverity(20*time.Second, 10*time.Second))
}

func TestFreshnessSeverityTier0Red(t *testing.T) {
	require.Equal(t, claims.StatusGreen, FreshnessSeverity(false, 0))
	require.Equal(t, claims.StatusRed, FreshnessSeverity(true, 0))
	require.Equal(t, claims.StatusYellow, FreshnessSeverity(true, 2))
}

func TestVerifySeverityEscalatesOnRepeat(t *testing.T) {
	require.Equal(t, claims.StatusGreen, VerifySeverity(0, 2))
	require.Equal(t, claims.StatusYellow, VerifySeverity(1, 2))
	require.Equal(t, claims.StatusRed, VerifySeverity(2, 2))
	require.Equal(t, claims.StatusRed, VerifySeverity(1, 0))
}

func TestRegistryEscalatesOnThirdOccurrenceWithinWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	r := NewRegistry().WithClock(func() time.Time { return clock })

	fp, err := ComputeFingerprint(TypeFreshness, "sig")
	require.NoError(t, err)

	sig := Signal{EpisodeID: "ep-1", DetectedAt: now, Fingerprint: fp}
	require.Nil(t, r.Record(sig))

	clock = now.Add(24 * time.Hour)
	sig.EpisodeID = "ep-2"
	sig.DetectedAt = clock
	require.Nil(t, r.Record(sig))

	clock = now.Add(48 * time.Hour)
	sig.EpisodeID = "ep-3"
	sig.DetectedAt = clock
	esc := r.Record(sig)
	require.NotNil(t, esc)
	require.Equal(t, 3, esc.Count)
}

func TestRegistryPrunesOutOfWindowOccurrences(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	r := NewRegistry().WithClock(func() time.Time { return clock })

	fp, err := ComputeFingerprint(TypeVerify, "sig")
	require.NoError(t, err)

	r.Record(Signal{EpisodeID: "ep-1", DetectedAt: now, Fingerprint: fp})

	clock = now.Add(20 * 24 * time.Hour)
	esc := r.Record(Signal{EpisodeID: "ep-2", DetectedAt: clock, Fingerprint: fp})
	require.Nil(t, esc)
	require.Equal(t, 1, r.RecurrenceCount(fp.Key))
}
