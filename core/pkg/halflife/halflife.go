// Package halflife implements C9: expiry/decay computation for claims and
// evidence, and the cross-node watermark that tracks each source's
// monotonically nondecreasing high-water event_time.
//
// Grounded on the teacher's pkg/kernel.RedisLimiterStore (go-redis client
// wrapping a small atomic script against a per-key state hash), adapted
// here from a token-bucket rate limiter to a monotonic high-water-mark
// tracker using ZADD's GT flag instead of a hand-written Lua script, since
// "set only if greater" is exactly what a GT sorted-set update guarantees
// natively in Redis 6.2+.
package halflife

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

// ExpiresAt implements expiresAt = timestampCreated + halfLife. A
// halfLife.value of 0 (perpetual claims only) never expires, so ok is
// false and the zero time is returned.
func ExpiresAt(createdAt time.Time, hl claims.HalfLife) (t time.Time, ok bool) {
	if hl.Value == 0 {
		return time.Time{}, false
	}
	d := duration(hl)
	return createdAt.Add(d), true
}

func duration(hl claims.HalfLife) time.Duration {
	switch hl.Unit {
	case "seconds", "second", "s":
		return time.Duration(hl.Value * float64(time.Second))
	case "minutes", "minute", "m":
		return time.Duration(hl.Value * float64(time.Minute))
	case "hours", "hour", "h":
		return time.Duration(hl.Value * float64(time.Hour))
	case "days", "day", "d":
		return time.Duration(hl.Value * 24 * float64(time.Hour))
	default:
		return time.Duration(hl.Value * float64(time.Hour))
	}
}

// Decay implements the "at half-life, confidence halves" lifecycle step
// (spec §3/§3.9) and re-derives the claim's status light under thresholds.
func Decay(c claims.Claim, thresholds claims.Thresholds) claims.Claim {
	c.Confidence.Score /= 2
	return claims.Recompute(c, thresholds)
}

// AtHalfLife reports whether now has reached the claim's half-life point,
// relative to createdAt.
func AtHalfLife(createdAt, now time.Time, hl claims.HalfLife) bool {
	if hl.Value == 0 {
		return false
	}
	return !now.Before(createdAt.Add(duration(hl)))
}

// EvidenceTierTTLRange is the per-tier default min/max TTL window of
// spec §4.9: Tier-0 minutes–hours, Tier-1 hours–1 day, Tier-2 1–7 days,
// Tier-3 1–30 days.
var EvidenceTierTTLRange = map[int][2]time.Duration{
	0: {1 * time.Minute, 6 * time.Hour},
	1: {1 * time.Hour, 24 * time.Hour},
	2: {24 * time.Hour, 7 * 24 * time.Hour},
	3: {24 * time.Hour, 30 * 24 * time.Hour},
}

// Watermark tracks, per source, the monotonically nondecreasing
// high-water event_time of fully-acknowledged evidence, and flags a
// SignalLoss when a source stalls for more than StallAfter.
type Watermark struct {
	Client     *redis.Client
	StallAfter time.Duration
	Clock      func() time.Time
}

// NewWatermark constructs a Watermark backed by client, using the spec's
// default 5-minute stall window.
func NewWatermark(client *redis.Client) *Watermark {
	return &Watermark{Client: client, StallAfter: 5 * time.Minute, Clock: time.Now}
}

func watermarkKey(sourceID string) string { return "mesh:watermark:" + sourceID }
func lastSeenKey(sourceID string) string  { return "mesh:watermark:lastseen:" + sourceID }

// Advance records eventTime for sourceID if it exceeds the current
// high-water mark (via ZADD GT), and stamps the wall-clock last-seen time
// used for stall detection. Returns whether the watermark actually moved.
func (w *Watermark) Advance(ctx context.Context, sourceID string, eventTime time.Time) (bool, error) {
	res := w.Client.ZAddArgs(ctx, watermarkKey(sourceID), redis.ZAddArgs{
		GT:      true,
		Ch:      true,
		Members: []redis.Z{{Score: float64(eventTime.Unix()), Member: "watermark"}},
	})
	n, err := res.Result()
	if err != nil {
		return false, err
	}
	if err := w.Client.Set(ctx, lastSeenKey(sourceID), w.Clock().UnixNano(), 0).Err(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// High returns the current high-water event_time for sourceID.
func (w *Watermark) High(ctx context.Context, sourceID string) (time.Time, error) {
	scores, err := w.Client.ZScore(ctx, watermarkKey(sourceID), "watermark").Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(scores), 0), nil
}

// SignalLossCheck reports whether sourceID has stalled (no Advance call
// within StallAfter of now), implying a `time`-category drift signal
// should fire at the drift detector.
func (w *Watermark) SignalLossCheck(ctx context.Context, sourceID string) (stalled bool, err error) {
	val, err := w.Client.Get(ctx, lastSeenKey(sourceID)).Int64()
	if err == redis.Nil {
		return false, nil // never seen; not a stall, just unknown
	}
	if err != nil {
		return false, err
	}
	lastSeen := time.Unix(0, val)
	return w.Clock().Sub(lastSeen) > w.StallAfter, nil
}
