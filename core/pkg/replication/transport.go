package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
	"github.com/distributed-credibility/mesh/core/pkg/observability"
)

// Batch is the JSON wire payload pushed or pulled between peers, encoded
// with encoding/json; it is not passed through package canonicalize. It
// follows spec §6's literal replication protocol: records grouped by
// which C6 pipeline log they belong to, plus the cursor a subsequent pull
// should resume from.
type Batch struct {
	Envelopes   []json.RawMessage `json:"envelopes,omitempty"`
	Validations []json.RawMessage `json:"validations,omitempty"`
	Aggregates  []json.RawMessage `json:"aggregates,omitempty"`
	Seals       []json.RawMessage `json:"seals,omitempty"`
	NextCursor  int64             `json:"next_cursor"`
}

// Transport issues push/pull HTTP requests to replication peers,
// wrapping every call in per-peer exponential backoff and health
// tracking.
type Transport struct {
	client *http.Client
	obs    *observability.Provider
}

// NewTransport builds a Transport with the given *http.Client (nil picks
// a default with a 30s timeout, matching the teacher's EnhancedClient).
func NewTransport(client *http.Client) *Transport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transport{client: client}
}

// WithObservability attaches an observability.Provider so every Push/Pull
// round trip — one of the blocking operations spec §1's ambient stack
// names OTel spans must wrap — gets a span and RED metrics. A Transport
// with no provider attached (the zero value) tracks nothing, so existing
// callers that never call this are unaffected.
func (t *Transport) WithObservability(obs *observability.Provider) *Transport {
	t.obs = obs
	return t
}

// NewMTLSTransport builds a Transport whose client authenticates peers
// by SPIFFE ID rather than a traditional CA/hostname check, using an
// X.509 SVID fetched from the local workload API (spec §4.15: "Optional
// mTLS with pinned per-peer fingerprint; peer identity in SPIFFE-style
// form").
func NewMTLSTransport(ctx context.Context, workloadAPIAddr string, authorizedPeerID spiffeid.ID) (*Transport, error) {
	source, err := workloadapi.NewX509Source(ctx, workloadapi.WithAddr(workloadAPIAddr))
	if err != nil {
		return nil, meshrr.Wrap(meshrr.KindTransportUnreachable, err, "replication: connect to workload API")
	}

	tlsCfg := tlsconfig.MTLSClientConfig(source, source, tlsconfig.AuthorizeID(authorizedPeerID))
	return &Transport{
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
	}, nil
}

// Push delivers batch to peer via POST to spec §6's literal
// /mesh/{tenant}/{node}/push, retrying with exponential backoff up to
// peer's MaxRetries, and updates peer health on success/failure.
func (t *Transport) Push(ctx context.Context, peer *Peer, batch Batch) (result *Batch, err error) {
	entries := int64(len(batch.Envelopes) + len(batch.Validations) + len(batch.Aggregates) + len(batch.Seals))
	if t.obs != nil {
		var done func(error)
		ctx, done = t.obs.TrackOperation(ctx, "mesh.replication.push", observability.ReplicationOperation(peer.cfg.PeerID, "push", entries)...)
		defer func() { done(err) }()
	}

	body, merr := json.Marshal(batch)
	if merr != nil {
		err = meshrr.Wrap(meshrr.KindInputInvalid, merr, "replication: marshal push batch")
		return nil, err
	}

	url := fmt.Sprintf("%s/mesh/%s/%s/push", peer.cfg.BaseURL, peer.cfg.Tenant, peer.cfg.node())
	result, err = t.doWithBackoff(ctx, peer, func() (*Batch, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return t.do(req)
	})

	t.recordOutcome(peer, err)
	return result, err
}

// Pull requests every record beyond since from peer via GET to spec §6's
// literal /mesh/{tenant}/{node}/pull?since={cursor}, retrying with
// exponential backoff and updating peer health.
func (t *Transport) Pull(ctx context.Context, peer *Peer, since int64) (result *Batch, err error) {
	if t.obs != nil {
		var done func(error)
		ctx, done = t.obs.TrackOperation(ctx, "mesh.replication.pull", observability.ReplicationOperation(peer.cfg.PeerID, "pull", 0)...)
		defer func() { done(err) }()
	}

	url := fmt.Sprintf("%s/mesh/%s/%s/pull?since=%d", peer.cfg.BaseURL, peer.cfg.Tenant, peer.cfg.node(), since)

	result, err = t.doWithBackoff(ctx, peer, func() (*Batch, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		return t.do(req)
	})

	t.recordOutcome(peer, err)
	return result, err
}

// doWithBackoff wraps op in exponential backoff bounded by peer's
// BackoffBase and MaxRetries, the generalized replacement for the
// teacher's hand-rolled "base * 2^i + jitter" retry loop.
func (t *Transport) doWithBackoff(ctx context.Context, peer *Peer, op func() (*Batch, error)) (*Batch, error) {
	cfg := peer.cfg

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffBase
	if b.InitialInterval <= 0 {
		b.InitialInterval = 200 * time.Millisecond
	}

	return backoff.Retry(ctx, func() (*Batch, error) {
		batch, err := op()
		if err != nil {
			if meshrr.IsKind(err, meshrr.KindInputInvalid) || meshrr.IsKind(err, meshrr.KindCorrupt) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return batch, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxTries(cfg.MaxRetries))))
}

func maxTries(maxRetries int) int {
	if maxRetries <= 0 {
		return 1
	}
	return maxRetries + 1
}

func (t *Transport) do(req *http.Request) (*Batch, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, meshrr.Wrap(meshrr.KindTransportUnreachable, err, "replication: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, meshrr.New(meshrr.KindTransportUnreachable, fmt.Sprintf("replication: peer returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, meshrr.New(meshrr.KindInputInvalid, fmt.Sprintf("replication: peer rejected request with %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, meshrr.Wrap(meshrr.KindTransportUnreachable, err, "replication: read response")
	}

	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, meshrr.Wrap(meshrr.KindCorrupt, err, "replication: decode batch")
	}
	return &batch, nil
}

func (t *Transport) recordOutcome(peer *Peer, err error) {
	if err != nil {
		peer.RecordFailure(err.Error())
		return
	}
	peer.RecordSuccess()
}
