// Package registry implements the single process-wide lifecycle registry
// spec §5 names: "one lifecycle-managed registry of {canonical_serializer,
// crypto_provider, log_store, memory_graph, credibility_scorer}
// initialized at boot and torn down on shutdown; no other global mutable
// state is permitted."
//
// The teacher's own pkg/registry (registry.go, pack_registry.go,
// postgres_registry.go) is a plugin/capability-bundle catalog — canary
// rollouts, tenant pack installs — a different concern entirely, so it
// is not adapted here; this package is grounded instead on the same
// single-struct, construct-once-tear-down-once shape cmd/mesh/node.go
// already uses to bootstrap a CLI process, generalized into its own
// package so both the CLI and any future long-running server share one
// definition of what process-wide state is permitted to exist.
package registry

import (
	"sync"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/memorygraph"
	"github.com/distributed-credibility/mesh/core/pkg/scoring"
)

// Serializer is the canonical_serializer slot: canonicalize is a stateless
// function package, so the registry holds direct references to its two
// entry points rather than an interface value.
type Serializer struct {
	Bytes func(v interface{}) ([]byte, error)
	Hash  func(v interface{}) (string, error)
}

// Registry is the complete set of process-wide shared state a mesh node
// is permitted to hold. Every field is populated once in New and never
// replaced afterward; callers needing per-tenant or per-node variants
// (multiple MemoryGraphs, multiple CryptoProviders) own those instances
// themselves and reach this registry only for the truly global pieces —
// in practice just the serializer and the log store, with the other
// three fields present to satisfy §5's naming and populated with this
// node's single active instance.
type Registry struct {
	mu sync.RWMutex

	Serializer Serializer
	Crypto     cryptoprovider.Provider
	LogStore   *logstore.Store
	Graph      *memorygraph.Graph
	Scorer     *scoring.Policy

	closed bool
}

// New constructs a Registry from already-opened resources. It does not
// open the log store or build the other components itself — that
// remains each caller's job (cmd/mesh's openNode, or a future server
// bootstrap) — New only asserts the §5 invariant that these five and
// nothing else are held globally.
func New(crypto cryptoprovider.Provider, store *logstore.Store, graph *memorygraph.Graph, policy *scoring.Policy) *Registry {
	return &Registry{
		Serializer: Serializer{Bytes: canonicalize.Bytes, Hash: canonicalize.Hash},
		Crypto:     crypto,
		LogStore:   store,
		Graph:      graph,
		Scorer:     policy,
	}
}

// Closed reports whether Close has already been called.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close tears down the registry at shutdown. logstore.Store and
// memorygraph.Graph hold no open file descriptors between Append calls
// (each Append opens, writes, and closes), so there is nothing to
// release at the resource level; Close exists to make the lifecycle
// boundary explicit, observable through Closed. Field access after Close
// is not guarded.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
