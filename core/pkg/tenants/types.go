// Package tenants provides tenant lifecycle tracking: each tenant is
// active, suspended, or deleted, and owns a disjoint set of resources
// enforced by IsolationChecker.
package tenants

import "time"

// Status represents the current status of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Tenant is one node-local tenant registration. It carries no billing or
// identity fields — those belong to whatever actor/authority system sits in
// front of the mesh; the mesh only tracks a tenant's lifecycle state.
// IsolationChecker and replication do not consult that state.
type Tenant struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	SuspendedAt *time.Time `json:"suspended_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// IsActive returns true if the tenant is active.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}
