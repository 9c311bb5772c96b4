package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/api"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/memorygraph"
	"github.com/distributed-credibility/mesh/core/pkg/scoring"
	"github.com/distributed-credibility/mesh/core/pkg/seal"
)

func newTestTenant(t *testing.T) *api.TenantState {
	t.Helper()
	store, err := logstore.Open(t.TempDir())
	require.NoError(t, err)

	graph, err := memorygraph.Open(
		store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "memory_node"}),
		store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "memory_edge"}),
	)
	require.NoError(t, err)

	tlog, err := seal.OpenLog(store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "transparency"}))
	require.NoError(t, err)

	signer, err := cryptoprovider.NewEd25519Stdlib("test-key", nil)
	require.NoError(t, err)

	return api.NewTenantState(graph, tlog, signer)
}

func TestHandleSnapshot_NotFoundUntilRecorded(t *testing.T) {
	srv := api.NewServer()
	srv.RegisterTenant("t1", newTestTenant(t))

	req := httptest.NewRequest(http.MethodGet, "/api/t1/credibility/snapshot", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSnapshot_ReturnsRecordedResult(t *testing.T) {
	srv := api.NewServer()
	tenant := newTestTenant(t)
	srv.RegisterTenant("t1", tenant)

	tenant.RecordSnapshot(scoring.Result{TenantID: "t1", Score: 91, Band: scoring.BandMinorDrift})

	req := httptest.NewRequest(http.MethodGet, "/api/t1/credibility/snapshot", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var result scoring.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	require.Equal(t, 91.0, result.Score)
}

func TestHandleSnapshot_UnknownTenant(t *testing.T) {
	srv := api.NewServer()

	req := httptest.NewRequest(http.MethodGet, "/api/ghost/credibility/snapshot", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDrift24h(t *testing.T) {
	srv := api.NewServer()
	srv.RegisterTenant("t1", newTestTenant(t))

	req := httptest.NewRequest(http.MethodGet, "/api/t1/credibility/drift/24h", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Contains(t, body, "drift")
}

func TestPacketGenerateThenSeal(t *testing.T) {
	fixed := time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)
	srv := api.NewServer().WithClock(func() time.Time { return fixed })
	srv.RegisterTenant("t1", newTestTenant(t))

	genBody, err := json.Marshal(map[string]any{
		"decision_id": "dec-1",
		"hash_scope": seal.HashScope{
			Inputs:  []seal.InputRef{{Path: "input.json", SHA256: "abc"}},
			Prompts: []string{"prompt-1"},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/t1/credibility/packet/generate", bytes.NewReader(genBody))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var genResp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&genResp))
	require.NotEmpty(t, genResp["commit_hash"])

	sealBody, err := json.Marshal(map[string]string{"decision_id": "dec-1"})
	require.NoError(t, err)

	// Missing role must be rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/t1/credibility/packet/seal", bytes.NewReader(sealBody))
	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/t1/credibility/packet/seal", bytes.NewReader(sealBody))
	req.Header.Set("X-Role", "coherence_steward")
	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var sealResp seal.Seal
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sealResp))
	require.Equal(t, "dec-1", sealResp.DecisionID)
	require.Equal(t, fixed, sealResp.SealedAt)

	// Re-sealing the same decision_id must fail: it is no longer pending.
	req = httptest.NewRequest(http.MethodPost, "/api/t1/credibility/packet/seal", bytes.NewReader(sealBody))
	req.Header.Set("X-Role", "coherence_steward")
	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
