package main

import (
	"errors"
	"fmt"

	"github.com/distributed-credibility/mesh/core/pkg/authority"
	"github.com/distributed-credibility/mesh/core/pkg/claims"
	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/incident"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/memorygraph"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
	"github.com/distributed-credibility/mesh/core/pkg/registry"
	"github.com/distributed-credibility/mesh/core/pkg/seal"
)

// Node bundles one tenant/node's local component set: the pkg/registry
// lifecycle registry spec §5 names as the node's only permitted global
// mutable state ({canonical_serializer, crypto_provider, log_store,
// memory_graph, credibility_scorer}), plus the incident log every fatal
// error a command hits is expected to append to (spec §7) and the three
// node-scoped components (authority ledger, transparency log, claim
// lattice) that sit on top of the registry's shared pieces rather than
// inside it.
type Node struct {
	Config    *config.Config
	Store     *logstore.Store
	Signer    cryptoprovider.Provider
	Authority *authority.Ledger
	Graph     *memorygraph.Graph
	TLog      *seal.TransparencyLog
	Claims    *claims.Lattice
	Incidents *incident.Log
	Registry  *registry.Registry
}

// openNode opens (creating on first boot) every log-backed component a
// node needs to serve cfg.TenantID/cfg.NodeID locally.
func openNode(cfg *config.Config) (*Node, error) {
	store, err := logstore.Open(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("mesh: open storage root %s: %w", cfg.StorageRoot, err)
	}

	signer, err := buildSigner(cfg.CryptoBackend, cfg.StorageRoot, cfg.NodeID)
	if err != nil {
		return nil, err
	}

	key := func(kind string) logstore.Key {
		return logstore.Key{Tenant: cfg.TenantID, Node: cfg.NodeID, Kind: kind}
	}

	ledger, err := authority.Open(store.Log(key("authority")))
	if err != nil {
		return nil, fmt.Errorf("mesh: open authority ledger: %w", err)
	}
	ledger = ledger.WithClock(cfg.Clock())

	graph, err := memorygraph.Open(store.Log(key("memory_node")), store.Log(key("memory_edge")))
	if err != nil {
		return nil, fmt.Errorf("mesh: open memory graph: %w", err)
	}
	graph = graph.WithClock(cfg.Clock())

	tlog, err := seal.OpenLog(store.Log(key("transparency")))
	if err != nil {
		return nil, fmt.Errorf("mesh: open transparency log: %w", err)
	}
	tlog = tlog.WithClock(cfg.Clock())

	lattice := claims.NewLattice(claims.DefaultThresholds)

	incidents := incident.NewLog(store, cfg.TenantID, cfg.NodeID).WithClock(cfg.Clock())

	policy, err := resolvePolicy(cfg.PolicyBundleDir, "default")
	if err != nil {
		return nil, fmt.Errorf("mesh: resolve scoring policy: %w", err)
	}
	reg := registry.New(signer, store, graph, policy)

	return &Node{
		Config:    cfg,
		Store:     store,
		Signer:    signer,
		Authority: ledger,
		Graph:     graph,
		TLog:      tlog,
		Claims:    lattice,
		Incidents: incidents,
		Registry:  reg,
	}, nil
}

// closeNode tears down the process-wide lifecycle registry spec §5
// requires torn down at shutdown. Every other component node holds
// (Store, Graph, TLog, Incidents) persists through plain file appends
// with no open handle between calls, so the registry's Close is the
// entire shutdown surface.
func closeNode(node *Node) error {
	return node.Registry.Close()
}

// recordIncident appends err to node's incident log if it carries a
// meshrr.Error kind; errors of any other shape are not fatal in the
// §7 sense and are left to the caller's own reporting. A failure to
// append is deliberately swallowed here — incident recording is best
// effort and must never turn one fatal error into a second one that
// masks the command's real exit code.
func recordIncident(node *Node, component string, err error) {
	var merr *meshrr.Error
	if !errors.As(err, &merr) {
		return
	}
	_ = node.Incidents.Record(component, merr)
}
