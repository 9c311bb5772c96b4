package replication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestPeer() *Peer {
	cfg := DefaultConfig("peer-1", "https://peer-1.mesh.internal")
	return NewPeer(cfg).WithClock(fixedClock(time.Unix(1000, 0)))
}

func TestNewPeerStartsOnline(t *testing.T) {
	p := newTestPeer()
	require.Equal(t, StateOnline, p.Health().State)
}

func TestRecordFailureTransitionsToSuspectThenOffline(t *testing.T) {
	p := newTestPeer()

	for i := 0; i < 2; i++ {
		p.RecordFailure("timeout")
		require.Equal(t, StateOnline, p.Health().State, "below suspect threshold")
	}

	p.RecordFailure("timeout")
	require.Equal(t, StateSuspect, p.Health().State, "reached suspect_after_failures")

	for i := 0; i < 2; i++ {
		p.RecordFailure("timeout")
		require.Equal(t, StateSuspect, p.Health().State)
	}

	p.RecordFailure("timeout")
	require.Equal(t, StateOffline, p.Health().State, "reached offline_after_failures")
}

func TestRecordSuccessResetsFailureCounter(t *testing.T) {
	p := newTestPeer()
	p.RecordFailure("a")
	p.RecordFailure("b")
	p.RecordSuccess()

	h := p.Health()
	require.Equal(t, 0, h.ConsecutiveFailures)
	require.Equal(t, StateOnline, h.State)
	require.Empty(t, h.LastError)
}

func TestRecoveryRequiresConsecutiveSuccesses(t *testing.T) {
	p := newTestPeer()
	for i := 0; i < 6; i++ {
		p.RecordFailure("down")
	}
	require.Equal(t, StateOffline, p.Health().State)

	p.RecordSuccess()
	require.Equal(t, StateOffline, p.Health().State, "one success below recovery_successes")

	p.RecordSuccess()
	require.Equal(t, StateOnline, p.Health().State, "recovery_successes reached")
}

func TestRecordFailureStampsLastTransitionAt(t *testing.T) {
	p := newTestPeer()
	for i := 0; i < 3; i++ {
		p.RecordFailure("x")
	}
	require.Equal(t, time.Unix(1000, 0), p.Health().LastTransitionAt)
}

func TestManagerAddAndLookupPeer(t *testing.T) {
	m := NewManager()
	cfg := DefaultConfig("peer-a", "https://a.mesh.internal")
	m.AddPeer(cfg)

	got := m.Peer("peer-a")
	require.NotNil(t, got)
	require.Equal(t, "peer-a", got.Config().PeerID)
	require.Nil(t, m.Peer("unknown"))
	require.Len(t, m.Peers(), 1)
}
