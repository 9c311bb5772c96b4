package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/api"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
)

func newTestTenantWithPipeline(t *testing.T) (*api.TenantState, *logstore.Store) {
	t.Helper()
	store, err := logstore.Open(t.TempDir())
	require.NoError(t, err)

	tenant := newTestTenant(t)
	tenant.WithPipelineLogs(&api.PipelineLogs{
		Envelopes:   store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "pipeline_envelope"}),
		Validations: store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "pipeline_validation"}),
		Aggregates:  store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "pipeline_aggregate"}),
		Seals:       store.Log(logstore.Key{Tenant: "t1", Node: "n1", Kind: "pipeline_seal"}),
	})
	return tenant, store
}

func TestMeshPushAppendsRecordsThenPullReturnsThem(t *testing.T) {
	srv := api.NewServer().WithNodeID("n1")
	tenant, _ := newTestTenantWithPipeline(t)
	srv.RegisterTenant("t1", tenant)

	pushBody, err := json.Marshal(map[string]any{
		"envelopes":   []json.RawMessage{json.RawMessage(`{"envelope_id":"e1"}`)},
		"validations": []json.RawMessage{json.RawMessage(`{"verdict":"ACCEPT"}`)},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mesh/t1/n1/push", bytes.NewReader(pushBody))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var pushResp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&pushResp))
	accepted := pushResp["accepted"].(map[string]any)
	require.Equal(t, float64(1), accepted["envelopes"])
	require.Equal(t, float64(1), accepted["validations"])

	req = httptest.NewRequest(http.MethodGet, "/mesh/t1/n1/pull?since=0", nil)
	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var pullResp struct {
		Envelopes   []json.RawMessage `json:"envelopes"`
		Validations []json.RawMessage `json:"validations"`
		NextCursor  int64             `json:"next_cursor"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&pullResp))
	require.Len(t, pullResp.Envelopes, 1)
	require.Len(t, pullResp.Validations, 1)
	require.Equal(t, int64(1), pullResp.NextCursor)

	// A second pull from the returned cursor sees nothing new.
	req = httptest.NewRequest(http.MethodGet, "/mesh/t1/n1/pull?since=1", nil)
	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var empty struct {
		Envelopes []json.RawMessage `json:"envelopes"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&empty))
	require.Empty(t, empty.Envelopes)
}

func TestMeshPushRejectsWrongNode(t *testing.T) {
	srv := api.NewServer().WithNodeID("n1")
	tenant, _ := newTestTenantWithPipeline(t)
	srv.RegisterTenant("t1", tenant)

	req := httptest.NewRequest(http.MethodPost, "/mesh/t1/n2/push", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMeshStatusReportsPipelineDepths(t *testing.T) {
	srv := api.NewServer().WithNodeID("n1")
	tenant, _ := newTestTenantWithPipeline(t)
	srv.RegisterTenant("t1", tenant)

	req := httptest.NewRequest(http.MethodGet, "/mesh/t1/n1/status", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "n1", body["node_id"])
	require.Contains(t, body, "pipeline")
}

func TestMeshTopologyReturnsEmptyPeersWithoutManager(t *testing.T) {
	srv := api.NewServer().WithNodeID("n1")
	srv.RegisterTenant("t1", newTestTenant(t))

	req := httptest.NewRequest(http.MethodGet, "/mesh/t1/topology", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, []any{}, body["peers"])
}
