// Package replication implements C15: HTTP push/pull replication between
// mesh nodes, with a peer-health state machine, exponential backoff, and
// optional mTLS with SPIFFE peer identity.
//
// Grounded on the teacher's pkg/util/resiliency.EnhancedClient and its
// CircuitBreaker (CLOSED/OPEN/HALF_OPEN state machine wrapping an
// *http.Client with retry-with-backoff) — generalized here from a binary
// circuit breaker to the three-state ONLINE/SUSPECT/OFFLINE peer-health
// machine of spec §4.15, and from the teacher's hand-rolled
// power-of-two-plus-jitter backoff loop to github.com/cenkalti/backoff/v5,
// which is already a direct dependency of the teacher's go.mod.
package replication

import (
	"sync"
	"time"
)

// State is one of the three peer-health states of spec §4.15.
type State string

const (
	StateOnline  State = "ONLINE"
	StateSuspect State = "SUSPECT"
	StateOffline State = "OFFLINE"
)

// Config carries the per-peer thresholds named in spec §4.15.
type Config struct {
	PeerID               string
	BaseURL              string
	Tenant               string // tenant ID in the replicated /mesh/{tenant}/{node} path
	Node                 string // remote node ID; defaults to PeerID when empty
	SPIFFEID             string // optional; not read by Transport, which pins no per-peer identity from it
	SuspectAfterFailures int
	OfflineAfterFailures int
	RecoverySuccesses    int
	BackoffBase          time.Duration
	MaxRetries           int
}

// node returns the remote node ID to address in the replication path,
// falling back to PeerID when Node is unset.
func (c Config) node() string {
	if c.Node != "" {
		return c.Node
	}
	return c.PeerID
}

// DefaultConfig fills in the thresholds spec §4.15 implies as sane
// defaults, leaving PeerID/BaseURL/SPIFFEID for the caller.
func DefaultConfig(peerID, baseURL string) Config {
	return Config{
		PeerID:               peerID,
		BaseURL:              baseURL,
		SuspectAfterFailures: 3,
		OfflineAfterFailures: 6,
		RecoverySuccesses:    2,
		BackoffBase:          200 * time.Millisecond,
		MaxRetries:           5,
	}
}

// Health is one peer's current state machine position.
type Health struct {
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastError            string    `json:"last_error,omitempty"`
	LastTransitionAt     time.Time `json:"last_transition_at"`
}

// Peer tracks one replication partner's config and live health state.
type Peer struct {
	mu     sync.Mutex
	cfg    Config
	health Health
	clock  func() time.Time
}

// NewPeer constructs a Peer starting ONLINE.
func NewPeer(cfg Config) *Peer {
	return &Peer{
		cfg:    cfg,
		health: Health{State: StateOnline},
		clock:  time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (p *Peer) WithClock(clock func() time.Time) *Peer {
	p.clock = clock
	return p
}

// Config returns the peer's static configuration.
func (p *Peer) Config() Config { return p.cfg }

// Health returns a snapshot of the peer's current health state.
func (p *Peer) Health() Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health
}

// RecordSuccess advances the state machine on a successful push/pull.
// ONLINE stays ONLINE; SUSPECT or OFFLINE require recovery_successes
// consecutive successes to return to ONLINE (spec §4.15: "Recovery
// requires recovery_successes consecutive successes").
func (p *Peer) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.health.ConsecutiveFailures = 0
	p.health.ConsecutiveSuccesses++
	p.health.LastError = ""

	if p.health.State != StateOnline && p.health.ConsecutiveSuccesses >= p.cfg.RecoverySuccesses {
		p.health.State = StateOnline
		p.health.LastTransitionAt = p.clock()
	}
}

// RecordFailure advances the state machine on a failed push/pull.
// ONLINE -> SUSPECT after suspect_after_failures consecutive errors;
// SUSPECT -> OFFLINE after offline_after_failures consecutive errors.
func (p *Peer) RecordFailure(errDetail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.health.ConsecutiveSuccesses = 0
	p.health.ConsecutiveFailures++
	p.health.LastError = errDetail

	switch {
	case p.health.ConsecutiveFailures >= p.cfg.OfflineAfterFailures && p.health.State != StateOffline:
		p.health.State = StateOffline
		p.health.LastTransitionAt = p.clock()
	case p.health.ConsecutiveFailures >= p.cfg.SuspectAfterFailures && p.health.State == StateOnline:
		p.health.State = StateSuspect
		p.health.LastTransitionAt = p.clock()
	}
}

// Manager tracks every configured replication peer.
type Manager struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewManager constructs an empty peer Manager.
func NewManager() *Manager {
	return &Manager{peers: make(map[string]*Peer)}
}

// AddPeer registers (or replaces) a peer under cfg.
func (m *Manager) AddPeer(cfg Config) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := NewPeer(cfg)
	m.peers[cfg.PeerID] = p
	return p
}

// Peer returns the registered peer, or nil if unknown.
func (m *Manager) Peer(peerID string) *Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peers[peerID]
}

// Peers returns every registered peer.
func (m *Manager) Peers() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out
}
