package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
)

func newStore(t *testing.T) *logstore.Store {
	t.Helper()
	s, err := logstore.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestEdgeEmitSignsAndAppends(t *testing.T) {
	store := newStore(t)
	signer, err := cryptoprovider.NewEd25519Stdlib("edge-key", nil)
	require.NoError(t, err)

	edge := NewEdge("t1", "node-edge", signer, store.Log(logstore.Key{Tenant: "t1", Node: "node-edge", Kind: "envelopes"}))
	env, err := edge.Emit("env-1", "observation", map[string]string{"foo": "bar"})
	require.NoError(t, err)
	require.NotEmpty(t, env.Signature)
	require.NotEmpty(t, env.PayloadHash)
}

func TestValidatorAcceptsGoodSignatureAndDedupes(t *testing.T) {
	store := newStore(t)
	signer, err := cryptoprovider.NewEd25519Stdlib("edge-key", nil)
	require.NoError(t, err)
	kr := cryptoprovider.NewKeyring()
	kr.Rotate(signer)

	edge := NewEdge("t1", "node-edge", signer, store.Log(logstore.Key{Tenant: "t1", Node: "node-edge", Kind: "envelopes"}))
	env, err := edge.Emit("env-1", "observation", "payload")
	require.NoError(t, err)

	validator := NewValidator("node-val", kr, store.Log(logstore.Key{Tenant: "t1", Node: "node-val", Kind: "validations"}), time.Hour)
	v1, fresh1, err := validator.Validate(env)
	require.NoError(t, err)
	require.True(t, fresh1)
	require.Equal(t, VerdictAccept, v1.Verdict)

	_, fresh2, err := validator.Validate(env)
	require.NoError(t, err)
	require.False(t, fresh2, "duplicate (envelope_id, validator_node_id) must be a no-op")
}

func TestValidatorRejectsStaleTimestamp(t *testing.T) {
	store := newStore(t)
	signer, err := cryptoprovider.NewEd25519Stdlib("edge-key", nil)
	require.NoError(t, err)
	kr := cryptoprovider.NewKeyring()
	kr.Rotate(signer)

	edge := NewEdge("t1", "node-edge", signer, store.Log(logstore.Key{Tenant: "t1", Node: "node-edge", Kind: "envelopes"}))
	edge.Clock = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	env, err := edge.Emit("env-stale", "observation", "payload")
	require.NoError(t, err)

	validator := NewValidator("node-val", kr, store.Log(logstore.Key{Tenant: "t1", Node: "node-val", Kind: "validations"}), time.Hour)
	v, _, err := validator.Validate(env)
	require.NoError(t, err)
	require.Equal(t, VerdictReject, v.Verdict)
	require.Equal(t, string(ReasonStaleTimestamp), v.Reason)
}

func TestAggregatorGroupsByRegionAndGroup(t *testing.T) {
	store := newStore(t)
	locate := func(nodeID string) (string, string) {
		switch nodeID {
		case "val-us":
			return "us", "group-a"
		case "val-eu":
			return "eu", "group-b"
		default:
			return "unknown", "unknown"
		}
	}
	agg := NewAggregator(store.Log(logstore.Key{Tenant: "t1", Node: "node-agg", Kind: "aggregates"}), locate)

	snap, err := agg.Record("claim-1", Validation{EnvelopeID: "env-1", ValidatorNodeID: "val-us", Verdict: VerdictAccept})
	require.NoError(t, err)
	require.Equal(t, 1, snap.RegionCounts["us"])

	snap, err = agg.Record("claim-1", Validation{EnvelopeID: "env-2", ValidatorNodeID: "val-eu", Verdict: VerdictAccept})
	require.NoError(t, err)
	require.Equal(t, 1, snap.RegionCounts["eu"])
	require.Equal(t, 2, snap.TotalAccepts)
	require.ElementsMatch(t, []string{"group-a", "group-b"}, snap.CorrelationGroups)

	snap, err = agg.Record("claim-1", Validation{EnvelopeID: "env-3", ValidatorNodeID: "val-us", Verdict: VerdictReject})
	require.NoError(t, err)
	require.Nil(t, snap, "rejected validations do not produce a snapshot")
}

func TestSealAuthorityChainsAndVerifies(t *testing.T) {
	store := newStore(t)
	sa, err := NewSealAuthority(store.Log(logstore.Key{Tenant: "t1", Node: "node-seal", Kind: "seal_chain"}))
	require.NoError(t, err)

	s1, err := sa.Seal("policy-hash-1", "snapshot-hash-1", "seal-authority")
	require.NoError(t, err)
	require.Equal(t, GenesisSeal, s1.PrevSealHash)

	s2, err := sa.Seal("policy-hash-1", "snapshot-hash-2", "seal-authority")
	require.NoError(t, err)
	require.Equal(t, s1.SealHash, s2.PrevSealHash)

	require.NoError(t, VerifyChain([]PipelineSeal{s1, s2}))

	tampered := s2
	tampered.PolicyHash = "tampered"
	require.Error(t, VerifyChain([]PipelineSeal{s1, tampered}))
}

func TestVerifyPoolRunsConcurrently(t *testing.T) {
	store := newStore(t)
	signer, err := cryptoprovider.NewEd25519Stdlib("edge-key", nil)
	require.NoError(t, err)
	kr := cryptoprovider.NewKeyring()
	kr.Rotate(signer)

	edge := NewEdge("t1", "node-edge", signer, store.Log(logstore.Key{Tenant: "t1", Node: "node-edge", Kind: "envelopes"}))
	var envs []Envelope
	for i := 0; i < 5; i++ {
		env, err := edge.Emit(string(rune('a'+i)), "observation", i)
		require.NoError(t, err)
		envs = append(envs, env)
	}

	validator := NewValidator("node-val", kr, store.Log(logstore.Key{Tenant: "t1", Node: "node-val", Kind: "validations"}), time.Hour)
	pool := NewVerifyPool(validator, rate.Inf, 5, 4)

	results, err := pool.Run(context.Background(), envs)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		require.Equal(t, VerdictAccept, r.Verdict)
	}
}
