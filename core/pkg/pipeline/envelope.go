// Package pipeline implements C6: the signed envelope pipeline. Four roles
// — Edge, Validator, Aggregator, SealAuthority — each own a log and act as
// a producer/consumer pair across logs (spec §4.6). Ordering is total
// within a log and causal across logs via hash references; no role blocks
// on another beyond the log it reads from.
//
// Grounded on the teacher's pkg/envelope.Validator (fail-closed, per-field
// ValidationResult/ValidationError shape, generalized here from structural
// envelope validation to signature+freshness+policy validation) and
// pkg/envelope.EnvelopeMonitor (mutex-guarded in-memory tracking with a
// monotonic sequence, adapted into the Aggregator's per-claim counters).
package pipeline

import (
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// Envelope is the append-only, signed unit of the pipeline (spec §3).
type Envelope struct {
	EnvelopeID       string    `json:"envelope_id"`
	TenantID         string    `json:"tenant_id"`
	NodeID           string    `json:"node_id"`
	Role             string    `json:"role"`
	PayloadHash      string    `json:"payload_hash"`
	Signature        string    `json:"signature"`
	KeyID            string    `json:"key_id"`
	Timestamp        time.Time `json:"timestamp"`
	PrevEnvelopeHash string    `json:"prev_envelope_hash,omitempty"`

	// Payload is carried alongside the envelope for local processing; it is
	// not part of the signed bytes (only PayloadHash is). The hash the next
	// envelope carries as PrevEnvelopeHash covers the whole envelope,
	// Payload included.
	Payload interface{} `json:"payload"`
}

// Edge produces envelopes from local events: canonicalize, hash, sign,
// append.
type Edge struct {
	TenantID string
	NodeID   string
	Signer   cryptoprovider.Provider
	Log      *logstore.Log
	Clock    func() time.Time

	lastHash string
}

// NewEdge constructs an Edge role bound to its own envelopes.log.
func NewEdge(tenantID, nodeID string, signer cryptoprovider.Provider, log *logstore.Log) *Edge {
	return &Edge{TenantID: tenantID, NodeID: nodeID, Signer: signer, Log: log, Clock: time.Now}
}

// Emit canonicalizes payload, computes payload_hash, signs the envelope,
// and appends it to envelopes.log.
func (e *Edge) Emit(envelopeID, role string, payload interface{}) (Envelope, error) {
	payloadHash, err := canonicalize.Hash(payload)
	if err != nil {
		return Envelope{}, meshrr.Wrap(meshrr.KindInputInvalid, err, "edge: hash payload")
	}

	env := Envelope{
		EnvelopeID:       envelopeID,
		TenantID:         e.TenantID,
		NodeID:           e.NodeID,
		Role:             role,
		PayloadHash:      payloadHash,
		KeyID:            e.Signer.KeyID(),
		Timestamp:        e.Clock(),
		PrevEnvelopeHash: e.lastHash,
	}

	signBytes, err := canonicalize.Bytes(struct {
		EnvelopeID       string    `json:"envelope_id"`
		PayloadHash      string    `json:"payload_hash"`
		Timestamp        time.Time `json:"timestamp"`
		PrevEnvelopeHash string    `json:"prev_envelope_hash,omitempty"`
	}{env.EnvelopeID, env.PayloadHash, env.Timestamp, env.PrevEnvelopeHash})
	if err != nil {
		return Envelope{}, meshrr.Wrap(meshrr.KindInputInvalid, err, "edge: canonicalize for signing")
	}

	sig, err := e.Signer.Sign(signBytes)
	if err != nil {
		return Envelope{}, meshrr.Wrap(meshrr.KindInputInvalid, err, "edge: sign envelope")
	}
	env.Signature = sig.Value
	env.Payload = payload

	if err := e.Log.Append(env); err != nil {
		return Envelope{}, err
	}
	payloadHashForChain, err := canonicalize.Hash(env)
	if err != nil {
		return Envelope{}, err
	}
	e.lastHash = payloadHashForChain

	return env, nil
}
