package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/memorygraph"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
	"github.com/distributed-credibility/mesh/core/pkg/quorum"
	"github.com/distributed-credibility/mesh/core/pkg/replication"
	"github.com/distributed-credibility/mesh/core/pkg/scoring"
	"github.com/distributed-credibility/mesh/core/pkg/seal"
	"github.com/distributed-credibility/mesh/core/pkg/tenants"
)

// Role is one of the four header-asserted roles spec §6 defines for the
// Query API. There is no session/token layer here — role comes from the
// X-Role header, matching a node-internal dashboard/operator tool rather
// than a public-facing API.
type Role string

const (
	RoleExec             Role = "exec"
	RoleTruthOwner       Role = "truth_owner"
	RoleDRI              Role = "dri"
	RoleCoherenceSteward Role = "coherence_steward"
)

func roleFromRequest(r *http.Request) Role {
	return Role(r.Header.Get("X-Role"))
}

// PendingPacket is a decision packet whose hash_scope has been generated
// but not yet sealed.
type PendingPacket struct {
	DecisionID string
	Scope      seal.HashScope
	CreatedAt  time.Time
}

// TenantState bundles the per-tenant components the Query API reads from.
// One is constructed per tenant the node serves.
type TenantState struct {
	Graph           *memorygraph.Graph
	TransparencyLog *seal.TransparencyLog
	Signer          cryptoprovider.Provider
	Pipeline        *PipelineLogs

	mu       sync.Mutex
	snapshot *scoring.Result
	quorum   []quorum.Verdict
	pending  map[string]*PendingPacket
}

// NewTenantState wires one tenant's Query API backing state.
func NewTenantState(graph *memorygraph.Graph, tlog *seal.TransparencyLog, signer cryptoprovider.Provider) *TenantState {
	return &TenantState{
		Graph:           graph,
		TransparencyLog: tlog,
		Signer:          signer,
		pending:         make(map[string]*PendingPacket),
	}
}

// WithPipelineLogs attaches the tenant's C6 pipeline logs (the same four
// logs "mesh ingest" writes through Edge/Validator/Aggregator/SealAuthority),
// making them available to the push/pull replication handlers. A tenant
// with no Pipeline configured still serves every other Query API route;
// only /mesh/{tenant}/{node}/push and /pull require it.
func (s *TenantState) WithPipelineLogs(p *PipelineLogs) *TenantState {
	s.Pipeline = p
	return s
}

// RecordSnapshot stamps the tenant's latest computed credibility index,
// read back by GET .../credibility/snapshot. The scoring pipeline (run
// on a schedule or after each envelope batch) is the only writer.
func (s *TenantState) RecordSnapshot(result scoring.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := result
	s.snapshot = &r
}

// RecordQuorumVerdicts replaces the cached quorum verdicts used by the
// correlation endpoint.
func (s *TenantState) RecordQuorumVerdicts(verdicts []quorum.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quorum = append([]quorum.Verdict(nil), verdicts...)
}

// Server implements the node-local Query API of spec §6, serving one or
// more tenants from a single listener (a node hosts every tenant whose
// logs it owns locally; cross-tenant requests are refused by path, never
// by a shared handler reaching across TenantState instances).
//
// Grounded on the teacher's pkg/api handler set (RFC 7807-style error
// writer, per-IP GlobalRateLimiter, idempotency replay middleware) kept
// largely intact, with the handler bodies replaced end to end: the
// teacher's memory-ingest/search and OpenAI-proxy handlers had no home in
// this spec and were deleted (see DESIGN.md).
type Server struct {
	mu        sync.RWMutex
	tenants   map[string]*TenantState
	clock     func() time.Time
	nodeID    string
	isolation *tenants.IsolationChecker
}

// NewServer creates a Query API server with no tenants registered yet.
func NewServer() *Server {
	return &Server{
		tenants:   make(map[string]*TenantState),
		clock:     time.Now,
		isolation: tenants.NewIsolationChecker(),
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// WithIsolationChecker overrides the tenant-isolation checker, letting
// tests inject a checker with WithClock or pre-seeded (and deliberately
// conflicting) resource registrations.
func (s *Server) WithIsolationChecker(checker *tenants.IsolationChecker) *Server {
	s.isolation = checker
	return s
}

// WithNodeID sets the node identity the {node} path segment of spec §6's
// replication routes is checked against — a peer addressing this server by
// the wrong node ID is a routing bug, not a tenant-scoping question, so it
// fails before resolveTenant ever runs.
func (s *Server) WithNodeID(nodeID string) *Server {
	s.nodeID = nodeID
	return s
}

// RegisterTenant attaches tenantID's backing state to the server and
// claims tenantID as a resource the isolation checker now owns on
// tenantID's behalf — the baseline resource every request against this
// tenant is checked against (spec §2: "no tenant may read or mutate
// another tenant's ledger, evidence store, or memory graph").
func (s *Server) RegisterTenant(tenantID string, state *TenantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenantID] = state
	s.isolation.RegisterResource(tenantID, tenantID)
}

// RegisterTenantResources additionally claims resourceIDs (e.g. the
// logstore filenames backing this tenant's logs) on tenantID's behalf, so
// a future registration that reuses one of those IDs for a different
// tenant — a storage-root misconfiguration — trips CheckAccess instead of
// silently mixing two tenants' data.
func (s *Server) RegisterTenantResources(tenantID string, resourceIDs ...string) {
	for _, id := range resourceIDs {
		s.isolation.RegisterResource(tenantID, id)
	}
}

func (s *Server) tenant(tenantID string) (*TenantState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	return t, ok
}

// Routes returns the configured mux. tenant and the following path
// segment are matched with Go 1.22's ServeMux wildcard syntax.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{tenant}/credibility/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/{tenant}/credibility/claims/tier0", s.handleClaimsTier0)
	mux.HandleFunc("GET /api/{tenant}/credibility/drift/24h", s.handleDrift24h)
	mux.HandleFunc("GET /api/{tenant}/credibility/correlation", s.handleCorrelation)
	mux.HandleFunc("GET /api/{tenant}/credibility/sync", s.handleSync)
	mux.HandleFunc("POST /api/{tenant}/credibility/packet/generate", s.handlePacketGenerate)
	mux.HandleFunc("POST /api/{tenant}/credibility/packet/seal", s.handlePacketSeal)
	mux.HandleFunc("POST /mesh/{tenant}/{node}/push", s.handleMeshPush)
	mux.HandleFunc("GET /mesh/{tenant}/{node}/pull", s.handleMeshPull)
	mux.HandleFunc("GET /mesh/{tenant}/{node}/status", s.handleMeshStatus)
	mux.HandleFunc("GET /mesh/{tenant}/topology", s.handleMeshTopology)
	return mux
}

func (s *Server) resolveTenant(w http.ResponseWriter, r *http.Request) (*TenantState, bool) {
	tenantID := r.PathValue("tenant")
	t, ok := s.tenant(tenantID)
	if !ok {
		WriteErrorR(w, r, http.StatusNotFound, meshrr.KindInputInvalid, "unknown tenant")
		return nil, false
	}

	receipt := s.isolation.CheckAccess(tenantID, []string{tenantID})
	if !receipt.Isolated {
		WriteErrorR(w, r, http.StatusForbidden, meshrr.KindAuthorityDeny, "tenant isolation violation: "+strings.Join(receipt.Violations, "; "))
		return nil, false
	}

	return t, true
}

// resolveMeshNode resolves a /mesh/{tenant}/{node}/... request: the {node}
// segment must address this server's own node (a peer replicating against
// the wrong node ID is a misdirected request, spec §6's 403/404 territory,
// not a tenant it happens not to serve), then delegates to resolveTenant.
func (s *Server) resolveMeshNode(w http.ResponseWriter, r *http.Request) (*TenantState, bool) {
	if node := r.PathValue("node"); node != "" && node != s.nodeID {
		WriteErrorR(w, r, http.StatusNotFound, meshrr.KindInputInvalid, "unknown node "+node)
		return nil, false
	}
	return s.resolveTenant(w, r)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	t.mu.Lock()
	snap := t.snapshot
	t.mu.Unlock()
	if snap == nil {
		WriteErrorR(w, r, http.StatusNotFound, meshrr.KindInputInvalid, "no credibility index computed yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleClaimsTier0(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	// Tier-0 claims surface through the memory graph as CLAIM nodes; the
	// graph itself doesn't distinguish tiers, so this recalls the nodes
	// tagged "tier-0" with no time bound; no other tier metadata is
	// filtered on. An empty result is still returned in the correct envelope.
	nodes, err := t.Graph.Recall("tier-0", time.Time{})
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": nodes})
}

func (s *Server) handleDrift24h(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	groups, err := t.Graph.WhatDrifted()
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drift": groups})
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	t.mu.Lock()
	verdicts := append([]quorum.Verdict(nil), t.quorum...)
	t.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"verdicts": verdicts})
}

// handleSync reports each replication peer's health, letting an operator
// see whether a tenant's logs are current with the rest of the mesh
// without exposing the full Manager (which is process-wide, not
// per-tenant).
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolveTenant(w, r); !ok {
		return
	}
	mgr, _ := r.Context().Value(replicationManagerKey{}).(*replication.Manager)
	if mgr == nil {
		writeJSON(w, http.StatusOK, map[string]any{"peers": []any{}})
		return
	}
	peers := mgr.Peers()
	out := make([]replication.Health, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Health())
	}
	writeJSON(w, http.StatusOK, map[string]any{"peers": out})
}

type replicationManagerKey struct{}

// WithReplicationManager returns a handler middleware that makes mgr
// available to handleSync via the request context, avoiding a Server
// field for a process-wide (not per-tenant) dependency.
func WithReplicationManager(mgr *replication.Manager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), replicationManagerKey{}, mgr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type packetGenerateRequest struct {
	DecisionID string         `json:"decision_id"`
	HashScope  seal.HashScope `json:"hash_scope"`
}

func (s *Server) handlePacketGenerate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}

	var req packetGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.DecisionID == "" {
		WriteBadRequest(w, "decision_id is required")
		return
	}

	commitHash, err := seal.CommitHash(req.HashScope)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	t.mu.Lock()
	t.pending[req.DecisionID] = &PendingPacket{
		DecisionID: req.DecisionID,
		Scope:      req.HashScope,
		CreatedAt:  s.clock(),
	}
	t.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"decision_id": req.DecisionID,
		"commit_hash": commitHash,
		"hash_scope":  req.HashScope,
	})
}

type packetSealRequest struct {
	DecisionID string `json:"decision_id"`
}

// handlePacketSeal requires the coherence_steward role per spec §6.
func (s *Server) handlePacketSeal(w http.ResponseWriter, r *http.Request) {
	if roleFromRequest(r) != RoleCoherenceSteward {
		WriteForbidden(w, "packet/seal requires the coherence_steward role")
		return
	}

	t, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}

	var req packetSealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	t.mu.Lock()
	pending, ok := t.pending[req.DecisionID]
	if ok {
		delete(t.pending, req.DecisionID)
	}
	t.mu.Unlock()
	if !ok {
		WriteNotFound(w, "no pending packet for decision_id "+req.DecisionID)
		return
	}
	if t.Signer == nil {
		WriteInternal(w, meshrr.New(meshrr.KindInputInvalid, "tenant has no signer configured"))
		return
	}

	sealed, err := seal.Build(pending.DecisionID, pending.Scope, t.Signer, s.clock)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if _, err := t.TransparencyLog.Append(sealed.CommitHash); err != nil {
		WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sealed)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
