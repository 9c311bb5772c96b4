package halflife

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

func TestExpiresAtPerpetualClaimNeverExpires(t *testing.T) {
	created := time.Now()
	_, ok := ExpiresAt(created, claims.HalfLife{Value: 0})
	require.False(t, ok)
}

func TestExpiresAtAddsHalfLifeDuration(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires, ok := ExpiresAt(created, claims.HalfLife{Value: 24, Unit: "hours"})
	require.True(t, ok)
	require.Equal(t, created.Add(24*time.Hour), expires)
}

func TestAtHalfLifeBoundary(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hl := claims.HalfLife{Value: 1, Unit: "hours"}
	require.False(t, AtHalfLife(created, created.Add(30*time.Minute), hl))
	require.True(t, AtHalfLife(created, created.Add(1*time.Hour), hl))
}

func TestDecayHalvesConfidenceAndRederivesStatus(t *testing.T) {
	c := claims.Claim{
		ClaimID:    "CLAIM-1",
		Confidence: claims.Confidence{Score: 0.9},
		Sources:    []claims.Source{{SourceID: "s1", Reliability: claims.ReliabilityHigh}},
	}
	decayed := Decay(c, claims.DefaultThresholds)
	require.InDelta(t, 0.45, decayed.Confidence.Score, 0.0001)
	require.NotEqual(t, claims.StatusGreen, decayed.StatusLight)
}

func TestEvidenceTierTTLRangeOrdering(t *testing.T) {
	for tier := 0; tier <= 3; tier++ {
		rng, ok := EvidenceTierTTLRange[tier]
		require.True(t, ok)
		require.Less(t, rng[0], rng[1])
	}
}

// TestWatermarkIntegration requires a running Redis; skipped otherwise,
// mirroring the teacher's RedisLimiterStore integration test.
func TestWatermarkIntegration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer client.Close()

	w := NewWatermark(client)
	source := "test-watermark-source"
	defer client.Del(ctx, watermarkKey(source), lastSeenKey(source))

	base := time.Now().Add(-time.Hour)
	moved, err := w.Advance(ctx, source, base)
	require.NoError(t, err)
	require.True(t, moved)

	moved, err = w.Advance(ctx, source, base.Add(-time.Minute))
	require.NoError(t, err)
	require.False(t, moved, "earlier event_time must not move the watermark backward")

	high, err := w.High(ctx, source)
	require.NoError(t, err)
	require.WithinDuration(t, base, high, time.Second)

	stalled, err := w.SignalLossCheck(ctx, source)
	require.NoError(t, err)
	require.False(t, stalled)
}
