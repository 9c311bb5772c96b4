package drift

import (
	"sync"
	"time"
)

// Occurrence is one recorded sighting of a fingerprint, used to evaluate
// the DRT-001 recurrence window.
type Occurrence struct {
	EpisodeID  string
	DetectedAt time.Time
}

// Escalation fires when DRT-001 trips: a fingerprint has recurred
// RecurrenceThreshold or more times within RecurrenceWindow.
type Escalation struct {
	FingerprintKey string       `json:"fingerprint_key"`
	Count          int          `json:"count"`
	Since          time.Time    `json:"since"`
	Occurrences    []Occurrence `json:"occurrences"`
}

// Registry deduplicates signals by fingerprint across episodes while
// tracking each fingerprint's recurrence history, and raises an
// Escalation when DRT-001's threshold trips. Mirrors the teacher's
// escalation.Manager: mutex-guarded map keyed by ID, overridable clock.
type Registry struct {
	mu          sync.Mutex
	occurrences map[string][]Occurrence
	clock       func() time.Time
}

// NewRegistry constructs an empty Registry using the real wall clock.
func NewRegistry() *Registry {
	return &Registry{occurrences: make(map[string][]Occurrence), clock: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Record registers sig's occurrence under its fingerprint, pruning
// occurrences older than RecurrenceWindow, and returns an Escalation if
// DRT-001's recurrence threshold is now met.
func (r *Registry) Record(sig Signal) *Escalation {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	key := sig.Fingerprint.Key
	occs := append(r.occurrences[key], Occurrence{EpisodeID: sig.EpisodeID, DetectedAt: sig.DetectedAt})

	kept := occs[:0]
	for _, o := range occs {
		if now.Sub(o.DetectedAt) <= RecurrenceWindow {
			kept = append(kept, o)
		}
	}
	r.occurrences[key] = kept

	if len(kept) >= RecurrenceThreshold {
		return &Escalation{
			FingerprintKey: key,
			Count:          len(kept),
			Since:          kept[0].DetectedAt,
			Occurrences:    append([]Occurrence(nil), kept...),
		}
	}
	return nil
}

// RecurrenceCount returns how many live (within-window) occurrences a
// fingerprint currently has.
func (r *Registry) RecurrenceCount(fingerprintKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occurrences[fingerprintKey])
}
