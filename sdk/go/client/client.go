// Package client provides a typed Go client for a mesh node's Query API
// (core/pkg/api). Zero external dependencies — uses net/http and
// encoding/json only, so embedding this SDK in another project never
// drags in the node's own dependency tree.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is returned when the node responds with a non-2xx status.
type APIError struct {
	Status int
	Kind   string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mesh api %d: %s (%s)", e.Status, e.Detail, e.Kind)
}

// Client is a typed client for one mesh node's Query API.
type Client struct {
	BaseURL    string
	Role       string
	HTTPClient *http.Client
}

// New creates a Client against a node's base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures the client.
type Option func(*Client)

// WithRole sets the X-Role header sent with every request, matching the
// role-gated endpoints the Query API checks (e.g. coherence_steward for
// packet/seal).
func WithRole(role string) Option {
	return func(c *Client) { c.Role = role }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

func (c *Client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Role != "" {
		req.Header.Set("X-Role", c.Role)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var body ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			return &APIError{Status: resp.StatusCode, Kind: body.Error, Detail: body.Detail}
		}
		return &APIError{Status: resp.StatusCode, Kind: "UNKNOWN", Detail: "unreadable error body"}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Snapshot calls GET /api/{tenant}/credibility/snapshot.
func (c *Client) Snapshot(tenant string) (*Snapshot, error) {
	var out Snapshot
	err := c.do("GET", "/api/"+tenant+"/credibility/snapshot", nil, &out)
	return &out, err
}

// ClaimsTier0 calls GET /api/{tenant}/credibility/claims/tier0.
func (c *Client) ClaimsTier0(tenant string) (map[string]any, error) {
	var out map[string]any
	err := c.do("GET", "/api/"+tenant+"/credibility/claims/tier0", nil, &out)
	return out, err
}

// Drift24h calls GET /api/{tenant}/credibility/drift/24h.
func (c *Client) Drift24h(tenant string) (*DriftReport, error) {
	var out DriftReport
	err := c.do("GET", "/api/"+tenant+"/credibility/drift/24h", nil, &out)
	return &out, err
}

// Correlation calls GET /api/{tenant}/credibility/correlation.
func (c *Client) Correlation(tenant string) ([]Verdict, error) {
	var out struct {
		Verdicts []Verdict `json:"verdicts"`
	}
	err := c.do("GET", "/api/"+tenant+"/credibility/correlation", nil, &out)
	return out.Verdicts, err
}

// Sync calls GET /api/{tenant}/credibility/sync, reporting each
// replication peer's health.
func (c *Client) Sync(tenant string) ([]PeerHealth, error) {
	var out struct {
		Peers []PeerHealth `json:"peers"`
	}
	err := c.do("GET", "/api/"+tenant+"/credibility/sync", nil, &out)
	return out.Peers, err
}

// PacketGenerate calls POST /api/{tenant}/credibility/packet/generate,
// registering decisionID's hash scope as pending and returning its
// computed commit_hash.
func (c *Client) PacketGenerate(tenant, decisionID string, scope HashScope) (*PacketGenerateResponse, error) {
	var out PacketGenerateResponse
	err := c.do("POST", "/api/"+tenant+"/credibility/packet/generate", map[string]any{
		"decision_id": decisionID,
		"hash_scope":  scope,
	}, &out)
	return &out, err
}

// PacketSeal calls POST /api/{tenant}/credibility/packet/seal, signing a
// previously generated packet and appending it to the tenant's
// transparency log. Requires the client to carry WithRole("coherence_steward").
func (c *Client) PacketSeal(tenant, decisionID string) (*Seal, error) {
	var out Seal
	err := c.do("POST", "/api/"+tenant+"/credibility/packet/seal", map[string]any{
		"decision_id": decisionID,
	}, &out)
	return &out, err
}
