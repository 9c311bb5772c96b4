// Package authority implements C4: the append-only, hash-chained Authority
// Ledger. Entries are never mutated or deleted — a grant is revoked by
// appending a revocation entry that targets it, never by editing the
// original (spec §3 "Lifecycles: Authority").
//
// Grounded on the teacher's pkg/ledger.Ledger (in-memory hash chain with a
// clock hook and a Verify pass) generalized from its fixed four-ledger-type
// model to the single typed entry schema of §3/§4.4, and backed by
// pkg/logstore for durable NDJSON persistence instead of an in-memory slice.
package authority

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// GrantType enumerates §3's Authority Ledger Entry grant_type values.
type GrantType string

const (
	GrantDirect     GrantType = "direct"
	GrantDelegated  GrantType = "delegated"
	GrantEmergency  GrantType = "emergency"
	GrantRevocation GrantType = "revocation"
)

// Entry is the Authority Ledger Entry of §3.
type Entry struct {
	EntryVersion  int        `json:"entry_version"`
	EntryID       string     `json:"entry_id"`
	EntryHash     string     `json:"entry_hash"`
	PrevEntryHash *string    `json:"prev_entry_hash"`
	AuthorityID   string     `json:"authority_id"`
	ActorID       string     `json:"actor_id"`
	ActorRole     string     `json:"actor_role"`
	GrantType     GrantType  `json:"grant_type"`
	ScopeBound    string     `json:"scope_bound"`
	PolicyVersion string     `json:"policy_version"`
	PolicyHash    string     `json:"policy_hash"`
	EffectiveAt   time.Time  `json:"effective_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at"`
	SigningKeyID  string     `json:"signing_key_id,omitempty"`
	SignatureRef  string     `json:"signature_ref,omitempty"`
	ObservedAt    time.Time  `json:"observed_at"`

	// RevokesAuthorityID is only set on grant_type=revocation entries; it
	// names the authority_id the revocation targets. Kept out of §3's field
	// list proper but required to implement find_active_for_actor's "no
	// later revocation entry targets authority_id" rule.
	RevokesAuthorityID string `json:"revokes_authority_id,omitempty"`
}

// Ledger is one node's append-only, hash-chained authority ledger.
type Ledger struct {
	mu    sync.RWMutex
	log   *logstore.Log
	head  *string
	clock func() time.Time

	// cache mirrors the log contents in memory for find_active_for_actor
	// and verify_chain without re-scanning disk on every query.
	entries []Entry
}

// Open loads (or initializes) the ledger backed by log.
func Open(log *logstore.Log) (*Ledger, error) {
	l := &Ledger{log: log, clock: time.Now}

	it, err := log.Iterate()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		var e Entry
		err := it.Next(&e)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		l.entries = append(l.entries, e)
		h := e.EntryHash
		l.head = &h
	}
	return l, nil
}

// WithClock overrides the clock for deterministic tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Append computes entry_hash (canonicalizing with entry_hash="" blanked),
// chains prev_entry_hash to the current head, and persists the entry.
func (l *Ledger) Append(e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.ObservedAt = l.clock()
	e.PrevEntryHash = l.head

	hash, err := canonicalize.HashWithBlankedField(&e, "entry_hash")
	if err != nil {
		return Entry{}, meshrr.Wrap(meshrr.KindInputInvalid, err, "authority: compute entry_hash")
	}
	e.EntryHash = hash

	if err := l.log.Append(e); err != nil {
		return Entry{}, err
	}

	l.entries = append(l.entries, e)
	h := e.EntryHash
	l.head = &h
	return e, nil
}

// Head returns the current chain head hash, or nil for an empty ledger.
func (l *Ledger) Head() *string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

// FindActiveForActor implements find_active_for_actor(actor_id, at_time):
// the single non-revocation entry for actor_id whose effective window
// covers at_time and that has not been targeted by a later revocation.
func (l *Ledger) FindActiveForActor(actorID string, atTime time.Time) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var active *Entry
	for i := range l.entries {
		e := l.entries[i]
		if e.ActorID != actorID || e.GrantType == GrantRevocation {
			continue
		}
		if e.EffectiveAt.After(atTime) {
			continue
		}
		if e.ExpiresAt != nil && atTime.After(*e.ExpiresAt) {
			continue
		}
		if l.revokedBefore(e.AuthorityID, atTime) {
			continue
		}
		if active == nil || newerPolicyVersion(e.PolicyVersion, active.PolicyVersion) {
			active = &e
		}
	}
	if active == nil {
		return nil, meshrr.New(meshrr.KindAuthorityDeny, fmt.Sprintf("no active authority for actor %q at %s", actorID, atTime))
	}
	return active, nil
}

// newerPolicyVersion reports whether candidate supersedes current under
// semver ordering. Entries with an unparseable policy_version never win a
// tie against a parseable one; if neither parses, the later log entry
// (candidate) wins, preserving the previous append-order behavior.
func newerPolicyVersion(candidate, current string) bool {
	cv, cErr := semver.NewVersion(candidate)
	pv, pErr := semver.NewVersion(current)
	switch {
	case cErr == nil && pErr == nil:
		return cv.GreaterThan(pv)
	case cErr == nil:
		return true
	case pErr == nil:
		return false
	default:
		return true
	}
}

// revokedBefore reports whether a revocation entry targeting authorityID
// was observed at or before atTime.
func (l *Ledger) revokedBefore(authorityID string, atTime time.Time) bool {
	for _, e := range l.entries {
		if e.GrantType == GrantRevocation && e.RevokesAuthorityID == authorityID {
			if !e.ObservedAt.After(atTime) {
				return true
			}
		}
	}
	return false
}

// VerifyChain re-derives every entry_hash and checks prev_entry_hash
// continuity end-to-end. Any break fails with LEDGER_TAMPER.
func (l *Ledger) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev *string
	for i, e := range l.entries {
		if !sameHash(prev, e.PrevEntryHash) {
			return meshrr.New(meshrr.KindLedgerTamper, fmt.Sprintf("chain broken at entry %d (%s): prev_entry_hash mismatch", i, e.EntryID))
		}
		stored := e.EntryHash
		recomputed, err := canonicalize.HashWithBlankedField(&e, "entry_hash")
		if err != nil {
			return meshrr.Wrap(meshrr.KindLedgerTamper, err, fmt.Sprintf("entry %d: cannot recompute hash", i))
		}
		if recomputed != stored {
			return meshrr.New(meshrr.KindLedgerTamper, fmt.Sprintf("entry %d (%s): entry_hash mismatch", i, e.EntryID))
		}
		h := stored
		prev = &h
	}
	return nil
}

func sameHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Entries returns a snapshot copy of every entry in sequence order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
