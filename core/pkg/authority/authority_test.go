package authority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/logstore"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := logstore.Open(t.TempDir())
	require.NoError(t, err)
	log := store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "authority"})
	l, err := Open(log)
	require.NoError(t, err)
	return l
}

func TestAppendChainsPrevEntryHash(t *testing.T) {
	l := openLedger(t)

	e1, err := l.Append(Entry{
		EntryID:       "AUTH-00000001",
		AuthorityID:   "auth-1",
		ActorID:       "actor-1",
		GrantType:     GrantDirect,
		PolicyVersion: "1.0.0",
		EffectiveAt:   time.Unix(0, 0),
	})
	require.NoError(t, err)
	require.Nil(t, e1.PrevEntryHash)
	require.NotEmpty(t, e1.EntryHash)

	e2, err := l.Append(Entry{
		EntryID:       "AUTH-00000002",
		AuthorityID:   "auth-2",
		ActorID:       "actor-2",
		GrantType:     GrantDirect,
		PolicyVersion: "1.0.0",
		EffectiveAt:   time.Unix(0, 0),
	})
	require.NoError(t, err)
	require.Equal(t, e1.EntryHash, *e2.PrevEntryHash)
}

func TestFindActiveForActorHonorsWindowAndRevocation(t *testing.T) {
	l := openLedger(t)

	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := l.Append(Entry{
		EntryID:     "AUTH-grant",
		AuthorityID: "auth-x",
		ActorID:     "actor-x",
		GrantType:   GrantDirect,
		EffectiveAt: effective,
		ExpiresAt:   &expires,
	})
	require.NoError(t, err)

	active, err := l.FindActiveForActor("actor-x", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "auth-x", active.AuthorityID)

	_, err = l.FindActiveForActor("actor-x", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	// The revocation is observed before the query instant below.
	l.WithClock(func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) })
	_, err = l.Append(Entry{
		EntryID:            "AUTH-revoke",
		AuthorityID:        "auth-revoke",
		ActorID:            "actor-x",
		GrantType:          GrantRevocation,
		RevokesAuthorityID: "auth-x",
		EffectiveAt:        effective,
	})
	require.NoError(t, err)

	_, err = l.FindActiveForActor("actor-x", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err, "revoked authority must no longer resolve as active")
}

func TestFindActiveForActorPrefersHigherPolicyVersion(t *testing.T) {
	l := openLedger(t)

	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := l.Append(Entry{
		EntryID:       "AUTH-v1",
		AuthorityID:   "auth-v1",
		ActorID:       "actor-x",
		GrantType:     GrantDirect,
		PolicyVersion: "2.1.0",
		EffectiveAt:   effective,
	})
	require.NoError(t, err)

	// Appended after v2.1.0 but carrying an older policy_version; the
	// higher semver entry must still win even though it is earlier in
	// log order.
	_, err = l.Append(Entry{
		EntryID:       "AUTH-v0",
		AuthorityID:   "auth-v0",
		ActorID:       "actor-x",
		GrantType:     GrantDirect,
		PolicyVersion: "1.9.0",
		EffectiveAt:   effective,
	})
	require.NoError(t, err)

	active, err := l.FindActiveForActor("actor-x", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "auth-v1", active.AuthorityID)
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	l := openLedger(t)

	_, err := l.Append(Entry{EntryID: "AUTH-1", AuthorityID: "a1", ActorID: "x", GrantType: GrantDirect, EffectiveAt: time.Unix(0, 0)})
	require.NoError(t, err)
	_, err = l.Append(Entry{EntryID: "AUTH-2", AuthorityID: "a2", ActorID: "y", GrantType: GrantDirect, EffectiveAt: time.Unix(0, 0)})
	require.NoError(t, err)

	require.NoError(t, l.VerifyChain())

	l.entries[0].PolicyVersion = "tampered"
	err = l.VerifyChain()
	require.Error(t, err)
}
