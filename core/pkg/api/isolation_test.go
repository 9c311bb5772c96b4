package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/api"
	"github.com/distributed-credibility/mesh/core/pkg/tenants"
)

func TestResolveTenantRejectsIsolationViolation(t *testing.T) {
	checker := tenants.NewIsolationChecker()
	// Simulate a storage-root misconfiguration: tenant "t2" has already
	// claimed the resource ID tenant "t1" is about to register itself as.
	checker.RegisterResource("t2", "t1")

	srv := api.NewServer().WithIsolationChecker(checker)
	srv.RegisterTenant("t1", newTestTenant(t))

	req := httptest.NewRequest(http.MethodGet, "/api/t1/credibility/snapshot", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestResolveTenantAllowsDisjointTenants(t *testing.T) {
	srv := api.NewServer()
	srv.RegisterTenant("t1", newTestTenant(t))

	req := httptest.NewRequest(http.MethodGet, "/api/t1/credibility/snapshot", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	// No snapshot recorded yet, but the isolation check itself must pass:
	// 404 (no snapshot) rather than 403 (isolation violation).
	require.Equal(t, http.StatusNotFound, w.Code)
}
