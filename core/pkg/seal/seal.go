// Package seal implements C14: the seal packet for a decision episode
// and its transparency log.
//
// Grounded on the teacher's pkg/authority.Ledger (append-only,
// hash-chained, logstore-backed, with a clock hook and a VerifyChain
// pass) — generalized here from an authority grant's entry_hash/
// prev_entry_hash chain to the transparency log's own commit_hash/
// log_hash/prev_log_hash chain, and on pkg/merkle/tree.go's
// domain-separated hash prefixes (the teacher hashes a canonical
// sub-object under a fixed string prefix rather than hashing raw bytes,
// a pattern kept here for commit_hash).
package seal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// InputRef names one input file by path and content hash.
type InputRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Parameters captures the parts of the run environment that must match
// for commit_hash to reproduce.
type Parameters struct {
	Clock             time.Time `json:"clock"`
	DeterministicMode bool      `json:"deterministic_mode"`
}

// HashScope is the set of everything a decision episode's commit_hash
// covers. Exclusions names fields intentionally left out of the hash
// (observed_at and artifacts_emitted vary run to run without changing
// the decision itself).
type HashScope struct {
	Inputs     []InputRef `json:"inputs"`
	Prompts    []string   `json:"prompts"`
	Policies   []string   `json:"policies"`
	Schemas    []string   `json:"schemas"`
	Parameters Parameters `json:"parameters"`
	Exclusions []string   `json:"exclusions"`
}

// DefaultExclusions is the exclusion set named in spec §4.14.
var DefaultExclusions = []string{"observed_at", "artifacts_emitted"}

// CommitHash computes sha256_canonical(hash_scope). Same inputs and same
// clock MUST yield the same commit_hash — determinism invariant of §4.14.
func CommitHash(scope HashScope) (string, error) {
	h, err := canonicalize.Hash(scope)
	if err != nil {
		return "", meshrr.Wrap(meshrr.KindInputInvalid, err, "seal: compute commit_hash")
	}
	return h, nil
}

// Seal is the sealed decision episode: hash_scope, its commit_hash, and
// the signature over that commit_hash.
type Seal struct {
	DecisionID   string    `json:"decision_id"`
	HashScope    HashScope `json:"hash_scope"`
	CommitHash   string    `json:"commit_hash"`
	SigningKeyID string    `json:"signing_key_id"`
	Signature    string    `json:"signature"`
	SealedAt     time.Time `json:"sealed_at"`
}

// Build computes commit_hash for scope, signs it with signer, and returns
// the completed Seal. It does not append to the transparency log — that
// is the caller's job via TransparencyLog.Append, kept separate so a
// caller can seal without necessarily publishing (e.g. dry runs).
func Build(decisionID string, scope HashScope, signer cryptoprovider.Provider, clock func() time.Time) (Seal, error) {
	if len(scope.Exclusions) == 0 {
		scope.Exclusions = DefaultExclusions
	}

	hash, err := CommitHash(scope)
	if err != nil {
		return Seal{}, err
	}

	sig, err := signer.Sign([]byte(hash))
	if err != nil {
		return Seal{}, meshrr.Wrap(meshrr.KindInputInvalid, err, "seal: sign commit_hash")
	}

	return Seal{
		DecisionID:   decisionID,
		HashScope:    scope,
		CommitHash:   hash,
		SigningKeyID: sig.KeyID,
		Signature:    sig.Value,
		SealedAt:     clock(),
	}, nil
}

// Verify recomputes commit_hash from s.HashScope and checks it against
// s.CommitHash and the stored signature.
func Verify(s Seal, verifier cryptoprovider.Provider) error {
	recomputed, err := CommitHash(s.HashScope)
	if err != nil {
		return err
	}
	if recomputed != s.CommitHash {
		return meshrr.New(meshrr.KindHashMismatch, fmt.Sprintf("seal %s: commit_hash mismatch: stored %s, recomputed %s", s.DecisionID, s.CommitHash, recomputed))
	}
	ok, err := verifier.Verify([]byte(s.CommitHash), cryptoprovider.Signature{KeyID: s.SigningKeyID, Value: s.Signature, Algorithm: verifier.Algorithm()})
	if err != nil {
		return meshrr.Wrap(meshrr.KindInputInvalid, err, "seal: verify signature")
	}
	if !ok {
		return meshrr.New(meshrr.KindHashMismatch, fmt.Sprintf("seal %s: signature invalid", s.DecisionID))
	}
	return nil
}

// TransparencyEntry is one entry in the transparency log, chained by
// log_hash the same way authority ledger entries chain by entry_hash.
type TransparencyEntry struct {
	SealedAt    time.Time `json:"sealed_at"`
	CommitHash  string    `json:"commit_hash"`
	PrevLogHash *string   `json:"prev_log_hash"`
	LogHash     string    `json:"log_hash"`
}

// TransparencyLog is the append-only NDJSON log of sealed commit_hashes,
// chained identically to the authority ledger.
type TransparencyLog struct {
	mu      sync.RWMutex
	log     *logstore.Log
	head    *string
	clock   func() time.Time
	entries []TransparencyEntry
}

// OpenLog loads (or initializes) a TransparencyLog backed by log.
func OpenLog(log *logstore.Log) (*TransparencyLog, error) {
	t := &TransparencyLog{log: log, clock: time.Now}

	it, err := log.Iterate()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		var e TransparencyEntry
		err := it.Next(&e)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t.entries = append(t.entries, e)
		h := e.LogHash
		t.head = &h
	}
	return t, nil
}

// WithClock overrides the clock for deterministic tests.
func (t *TransparencyLog) WithClock(clock func() time.Time) *TransparencyLog {
	t.clock = clock
	return t
}

// Append chains and persists a TransparencyEntry for commitHash.
func (t *TransparencyLog) Append(commitHash string) (TransparencyEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := TransparencyEntry{
		SealedAt:    t.clock(),
		CommitHash:  commitHash,
		PrevLogHash: t.head,
	}

	hash, err := canonicalize.HashWithBlankedField(&e, "log_hash")
	if err != nil {
		return TransparencyEntry{}, meshrr.Wrap(meshrr.KindInputInvalid, err, "seal: compute log_hash")
	}
	e.LogHash = hash

	if err := t.log.Append(e); err != nil {
		return TransparencyEntry{}, err
	}

	t.entries = append(t.entries, e)
	h := e.LogHash
	t.head = &h
	return e, nil
}

// Head returns the current chain head hash, or nil for an empty log.
func (t *TransparencyLog) Head() *string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.head
}

// VerifyChain re-derives every log_hash and checks prev_log_hash
// continuity end-to-end — "the same rules as the authority ledger"
// per spec §4.14.
func (t *TransparencyLog) VerifyChain() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var prev *string
	for i, e := range t.entries {
		if !sameHash(prev, e.PrevLogHash) {
			return meshrr.New(meshrr.KindChainBreak, fmt.Sprintf("transparency log broken at entry %d: prev_log_hash mismatch", i))
		}
		stored := e.LogHash
		recomputed, err := canonicalize.HashWithBlankedField(&e, "log_hash")
		if err != nil {
			return meshrr.Wrap(meshrr.KindChainBreak, err, fmt.Sprintf("entry %d: cannot recompute log_hash", i))
		}
		if recomputed != stored {
			return meshrr.New(meshrr.KindChainBreak, fmt.Sprintf("entry %d: log_hash mismatch", i))
		}
		h := stored
		prev = &h
	}
	return nil
}

// Entries returns a snapshot copy of every entry in sequence order.
func (t *TransparencyLog) Entries() []TransparencyEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TransparencyEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Contains reports whether commitHash has been sealed into the log.
func (t *TransparencyLog) Contains(commitHash string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.CommitHash == commitHash {
			return true
		}
	}
	return false
}

func sameHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
