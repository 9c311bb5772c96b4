package tenants

import (
	"fmt"
	"sync"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// Registry is a node-local, in-memory tenant lifecycle store. It is
// deliberately not backed by a database: each node's tenant set is
// bootstrapped from config and mutated only by local administrative
// operations, never replicated (replication carries claims and evidence,
// never tenant lifecycle state).
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
	clock   func() time.Time
}

// NewRegistry creates an empty tenant registry.
func NewRegistry() *Registry {
	return &Registry{
		tenants: make(map[string]*Tenant),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Register creates a new active tenant. It fails if tenantID is already
// registered.
func (r *Registry) Register(tenantID string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tenants[tenantID]; exists {
		return nil, meshrr.New(meshrr.KindInputInvalid, fmt.Sprintf("tenants: %q already registered", tenantID))
	}

	t := &Tenant{
		ID:        tenantID,
		Status:    StatusActive,
		CreatedAt: r.clock(),
	}
	r.tenants[tenantID] = t
	return t, nil
}

// Get returns a tenant by ID.
func (r *Registry) Get(tenantID string) (*Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	return t, ok
}

// Suspend marks a tenant suspended. Isolation checks remain valid for a
// suspended tenant; only new writes should be refused by the caller.
func (r *Registry) Suspend(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return meshrr.New(meshrr.KindInputInvalid, fmt.Sprintf("tenants: %q not registered", tenantID))
	}
	now := r.clock()
	t.Status = StatusSuspended
	t.SuspendedAt = &now
	return nil
}

// Reactivate restores a suspended tenant to active.
func (r *Registry) Reactivate(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return meshrr.New(meshrr.KindInputInvalid, fmt.Sprintf("tenants: %q not registered", tenantID))
	}
	t.Status = StatusActive
	t.SuspendedAt = nil
	return nil
}

// Delete marks a tenant deleted. Deletion is a status transition, not a
// removal — the Tenant record stays queryable through Get and All, so
// local audit tooling can see when and that it happened.
func (r *Registry) Delete(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return meshrr.New(meshrr.KindInputInvalid, fmt.Sprintf("tenants: %q not registered", tenantID))
	}
	now := r.clock()
	t.Status = StatusDeleted
	t.DeletedAt = &now
	return nil
}

// All returns a snapshot of every registered tenant.
func (r *Registry) All() []*Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out
}
