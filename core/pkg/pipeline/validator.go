package pipeline

import (
	"sync"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
)

// Verdict is a Validator's per-envelope accept/reject decision.
type Verdict string

const (
	VerdictAccept Verdict = "ACCEPT"
	VerdictReject Verdict = "REJECT"
)

// RejectReason enumerates spec §4.6's rejection reasons.
type RejectReason string

const (
	ReasonBadSignature   RejectReason = "BAD_SIGNATURE"
	ReasonStaleTimestamp RejectReason = "STALE_TIMESTAMP"
	ReasonPolicyDeny     RejectReason = "POLICY_DENY"
)

// Validation is one entry in validations.log.
type Validation struct {
	EnvelopeID      string    `json:"envelope_id"`
	ValidatorNodeID string    `json:"validator_node_id"`
	Verdict         Verdict   `json:"verdict"`
	Reason          string    `json:"reason,omitempty"`
	ValidatedAt     time.Time `json:"validated_at"`
}

// KeyResolver resolves the crypto provider used to verify a given key_id —
// implemented by cryptoprovider.Keyring.
type KeyResolver interface {
	ForVerification(keyID string) (cryptoprovider.Provider, error)
}

// PolicyCheck evaluates an envelope against ABP/policy-pack rules; returning
// false with a reason denies the envelope with POLICY_DENY.
type PolicyCheck func(env Envelope) (ok bool, reason string)

// Validator verifies peer envelopes and emits verdicts, deduplicating by
// (envelope_id, validator_node_id).
type Validator struct {
	NodeID      string
	Keys        KeyResolver
	Log         *logstore.Log
	StaleAfter  time.Duration
	PolicyCheck PolicyCheck
	Clock       func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewValidator constructs a Validator bound to its own validations.log.
func NewValidator(nodeID string, keys KeyResolver, log *logstore.Log, staleAfter time.Duration) *Validator {
	return &Validator{
		NodeID:     nodeID,
		Keys:       keys,
		Log:        log,
		StaleAfter: staleAfter,
		Clock:      time.Now,
		seen:       make(map[string]struct{}),
	}
}

// Validate checks signature validity, timestamp freshness, and policy, then
// appends exactly one verdict per (envelope_id, validator_node_id). A
// duplicate call for the same envelope is a no-op and returns the
// previously-recorded verdict's zero value with ok=false.
func (v *Validator) Validate(env Envelope) (Validation, bool, error) {
	v.mu.Lock()
	key := env.EnvelopeID + "|" + v.NodeID
	if _, dup := v.seen[key]; dup {
		v.mu.Unlock()
		return Validation{}, false, nil
	}
	v.seen[key] = struct{}{}
	v.mu.Unlock()

	result := v.evaluate(env)
	if err := v.Log.Append(result); err != nil {
		return Validation{}, false, err
	}
	return result, true, nil
}

func (v *Validator) evaluate(env Envelope) Validation {
	base := Validation{
		EnvelopeID:      env.EnvelopeID,
		ValidatorNodeID: v.NodeID,
		ValidatedAt:     v.Clock(),
	}

	provider, err := v.Keys.ForVerification(env.KeyID)
	if err != nil {
		base.Verdict = VerdictReject
		base.Reason = string(ReasonBadSignature)
		return base
	}

	signBytes, err := canonicalize.Bytes(struct {
		EnvelopeID       string    `json:"envelope_id"`
		PayloadHash      string    `json:"payload_hash"`
		Timestamp        time.Time `json:"timestamp"`
		PrevEnvelopeHash string    `json:"prev_envelope_hash,omitempty"`
	}{env.EnvelopeID, env.PayloadHash, env.Timestamp, env.PrevEnvelopeHash})
	if err != nil {
		base.Verdict = VerdictReject
		base.Reason = string(ReasonBadSignature)
		return base
	}

	ok, err := provider.Verify(signBytes, cryptoprovider.Signature{
		Algorithm: provider.Algorithm(),
		KeyID:     env.KeyID,
		Value:     env.Signature,
	})
	if err != nil || !ok {
		base.Verdict = VerdictReject
		base.Reason = string(ReasonBadSignature)
		return base
	}

	if v.StaleAfter > 0 && v.Clock().Sub(env.Timestamp) > v.StaleAfter {
		base.Verdict = VerdictReject
		base.Reason = string(ReasonStaleTimestamp)
		return base
	}

	if v.PolicyCheck != nil {
		if allowed, reason := v.PolicyCheck(env); !allowed {
			base.Verdict = VerdictReject
			base.Reason = reason
			if base.Reason == "" {
				base.Reason = string(ReasonPolicyDeny)
			}
			return base
		}
	}

	base.Verdict = VerdictAccept
	return base
}
