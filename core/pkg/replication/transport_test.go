package replication

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/observability"
)

func peerForServer(srv *httptest.Server) *Peer {
	cfg := DefaultConfig("peer-1", srv.URL)
	cfg.BackoffBase = time.Millisecond
	cfg.MaxRetries = 3
	return NewPeer(cfg)
}

func TestPullReturnsBatchAndRecordsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mesh/acme/peer-1/pull", r.URL.Path)
		require.Equal(t, "42", r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode(Batch{
			Envelopes:  []json.RawMessage{json.RawMessage(`{"id":1}`)},
			NextCursor: 43,
		})
	}))
	defer srv.Close()

	p := peerForServer(srv)
	p.cfg.Tenant = "acme"
	tr := NewTransport(nil)

	batch, err := tr.Pull(context.Background(), p, 42)
	require.NoError(t, err)
	require.Equal(t, int64(43), batch.NextCursor)
	require.Len(t, batch.Envelopes, 1)
	require.Equal(t, StateOnline, p.Health().State)
	require.Equal(t, 0, p.Health().ConsecutiveFailures)
}

func TestPushSendsRecordsAndRecordsSuccess(t *testing.T) {
	var gotBody Batch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mesh/acme/peer-1/push", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Batch{NextCursor: 10})
	}))
	defer srv.Close()

	p := peerForServer(srv)
	p.cfg.Tenant = "acme"
	tr := NewTransport(nil)

	batch := Batch{Envelopes: []json.RawMessage{json.RawMessage(`{"id":1}`)}, NextCursor: 10}
	result, err := tr.Push(context.Background(), p, batch)
	require.NoError(t, err)
	require.Equal(t, int64(10), result.NextCursor)
	require.Len(t, gotBody.Envelopes, 1)
}

func TestPullRetriesOnServerErrorThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Batch{NextCursor: 1})
	}))
	defer srv.Close()

	p := peerForServer(srv)
	tr := NewTransport(nil)

	batch, err := tr.Pull(context.Background(), p, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), batch.NextCursor)
	require.GreaterOrEqual(t, int32(3), atomic.LoadInt32(&attempts))
	require.Equal(t, StateOnline, p.Health().State)
}

func TestPullExhaustsRetriesAndRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig("peer-1", srv.URL)
	cfg.BackoffBase = time.Millisecond
	cfg.MaxRetries = 1
	cfg.SuspectAfterFailures = 1
	p := NewPeer(cfg)
	tr := NewTransport(nil)

	_, err := tr.Pull(context.Background(), p, 0)
	require.Error(t, err)
	require.Equal(t, StateSuspect, p.Health().State)
	require.Equal(t, 1, p.Health().ConsecutiveFailures)
}

func TestPushWithObservabilityDisabledProviderStillSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Batch{NextCursor: 1})
	}))
	defer srv.Close()

	// config.Enabled=false short-circuits New to a no-op provider, the
	// same path cmd_run.go takes when OBSERVABILITY_ENABLED is unset.
	obs, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)

	p := peerForServer(srv)
	p.cfg.Tenant = "acme"
	tr := NewTransport(nil).WithObservability(obs)

	batch, err := tr.Push(context.Background(), p, Batch{NextCursor: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), batch.NextCursor)
}

func TestPullRejectsClientErrorWithoutRetrying(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := DefaultConfig("peer-1", srv.URL)
	cfg.BackoffBase = time.Millisecond
	cfg.MaxRetries = 5
	p := NewPeer(cfg)
	tr := NewTransport(nil)

	_, err := tr.Pull(context.Background(), p, 0)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts), "4xx responses are permanent, not retried")
}
