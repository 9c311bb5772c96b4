package cryptoprovider

import (
	"fmt"
	"sync"
	"time"
)

// KeyRecord tracks one generation of a rotating key. Old key_ids remain in
// the ring only for verification of historical envelopes (spec §4.2) — they
// are never used to sign once superseded.
type KeyRecord struct {
	KeyID     string    `json:"key_id"`
	Algorithm string    `json:"algorithm"`
	CreatedAt time.Time `json:"created_at"`
	RetiredAt time.Time `json:"retired_at,omitempty"`
	Active    bool      `json:"active"`
}

// Keyring holds every provider this node has ever signed with, keyed by
// key_id, and tracks which one is currently active for new signatures.
// Grounded on the teacher's kms.go versioned key store, repurposed from
// credential encryption to envelope signing-key rotation.
type Keyring struct {
	mu        sync.RWMutex
	providers map[string]Provider
	records   map[string]*KeyRecord
	activeID  string
	clock     func() time.Time
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{
		providers: make(map[string]Provider),
		records:   make(map[string]*KeyRecord),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (k *Keyring) WithClock(clock func() time.Time) *Keyring {
	k.clock = clock
	return k
}

// Rotate installs a new active provider, retiring the previous active key
// (it remains in the ring for verification only).
func (k *Keyring) Rotate(p Provider) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.activeID != "" {
		if prev, ok := k.records[k.activeID]; ok {
			prev.Active = false
			prev.RetiredAt = k.clock()
		}
	}
	k.providers[p.KeyID()] = p
	k.records[p.KeyID()] = &KeyRecord{
		KeyID:     p.KeyID(),
		Algorithm: p.Algorithm(),
		CreatedAt: k.clock(),
		Active:    true,
	}
	k.activeID = p.KeyID()
}

// Active returns the provider currently used for new signatures.
func (k *Keyring) Active() (Provider, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.activeID == "" {
		return nil, fmt.Errorf("cryptoprovider: keyring has no active key")
	}
	return k.providers[k.activeID], nil
}

// ForVerification returns the provider registered under key_id, active or
// retired, so historical envelopes can still be verified after rotation.
func (k *Keyring) ForVerification(keyID string) (Provider, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	p, ok := k.providers[keyID]
	if !ok {
		return nil, fmt.Errorf("cryptoprovider: unknown key_id %q", keyID)
	}
	return p, nil
}

// Records returns a snapshot of every key_id's rotation bookkeeping.
func (k *Keyring) Records() []KeyRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]KeyRecord, 0, len(k.records))
	for _, r := range k.records {
		out = append(out, *r)
	}
	return out
}

// Sign signs with the active key, automatically stamping its key_id/alg.
func (k *Keyring) Sign(payload []byte) (Signature, error) {
	p, err := k.Active()
	if err != nil {
		return Signature{}, err
	}
	return p.Sign(payload)
}

// Verify verifies against whichever key_id the signature claims, current or
// retired.
func (k *Keyring) Verify(payload []byte, sig Signature) (bool, error) {
	p, err := k.ForVerification(sig.KeyID)
	if err != nil {
		return false, err
	}
	return p.Verify(payload, sig)
}
