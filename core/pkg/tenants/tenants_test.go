package tenants_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/tenants"
)

func fixedRegistry(t time.Time) *tenants.Registry {
	return tenants.NewRegistry().WithClock(func() time.Time { return t })
}

func TestRegistry_Register(t *testing.T) {
	r := fixedRegistry(time.Now())

	tenant, err := r.Register("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.ID)
	assert.True(t, tenant.IsActive())
	assert.NotZero(t, tenant.CreatedAt)

	_, err = r.Register("acme")
	assert.Error(t, err, "duplicate registration must fail")
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := fixedRegistry(time.Now())

	_, err := r.Register("acme")
	require.NoError(t, err)

	require.NoError(t, r.Suspend("acme"))
	tenant, ok := r.Get("acme")
	require.True(t, ok)
	assert.Equal(t, tenants.StatusSuspended, tenant.Status)
	assert.NotNil(t, tenant.SuspendedAt)

	require.NoError(t, r.Reactivate("acme"))
	tenant, _ = r.Get("acme")
	assert.True(t, tenant.IsActive())
	assert.Nil(t, tenant.SuspendedAt)

	require.NoError(t, r.Delete("acme"))
	tenant, _ = r.Get("acme")
	assert.Equal(t, tenants.StatusDeleted, tenant.Status)
	assert.NotNil(t, tenant.DeletedAt)
}

func TestRegistry_OperationsOnUnknownTenantFail(t *testing.T) {
	r := tenants.NewRegistry()

	assert.Error(t, r.Suspend("ghost"))
	assert.Error(t, r.Reactivate("ghost"))
	assert.Error(t, r.Delete("ghost"))

	_, ok := r.Get("ghost")
	assert.False(t, ok)
}

func TestRegistry_All(t *testing.T) {
	r := tenants.NewRegistry()

	_, err := r.Register("t1")
	require.NoError(t, err)
	_, err = r.Register("t2")
	require.NoError(t, err)

	all := r.All()
	assert.Len(t, all, 2)
}
