package artifacts

import (
	"encoding/json"
	"time"
)

// BundleFile names the pack files spec §4.14 defines a sealed run bundle
// as: seal.json, abp.json, transparency_log.ndjson, authority_ledger.ndjson,
// provenance.json — mirrored from pkg/verifier's own file-name constants so
// an exported bundle and a verify-pack directory agree on naming.
const (
	BundleFileSeal         = "seal.json"
	BundleFileABP          = "abp.json"
	BundleFileTransparency = "transparency_log.ndjson"
	BundleFileAuthority    = "authority_ledger.ndjson"
	BundleFileProvenance   = "provenance.json"
)

// ManifestEntry records one file belonging to a bundle, by content hash, so
// a store that only addresses blobs by hash can still reconstruct the
// original file names and sizes on restore.
type ManifestEntry struct {
	Name string `json:"name"`
	Hash string `json:"hash"` // sha256:<hex>, the store's own Store() return value
	Size int    `json:"size"`
}

// Manifest is the `.manifest.json` sidecar for one sealed run bundle,
// named `RUN-{commit_hash[:8]}_{sealed_at RFC3339}.json` per spec §4.14.
type Manifest struct {
	RunID      string          `json:"run_id"`
	DecisionID string          `json:"decision_id"`
	CommitHash string          `json:"commit_hash"`
	SealedAt   time.Time       `json:"sealed_at"`
	Files      []ManifestEntry `json:"files"`

	// BundleSignature covers the JSON encoding of the whole manifest with
	// its three signature fields blanked (see signingPayload), made with
	// the node's own cryptoprovider.Provider, so a bundle's manifest
	// is tamper-evident independent of the seal it carries.
	BundleSignature   string `json:"bundle_signature,omitempty"`
	SignatureKeyID    string `json:"signature_key_id,omitempty"`
	SignatureAlgorithm string `json:"signature_algorithm,omitempty"`
}

// signingPayload returns the bytes BundleSignature is computed over: the
// manifest with its own signature fields blanked, so signing is idempotent
// and doesn't sign over its own output.
func (m Manifest) signingPayload() ([]byte, error) {
	clone := m
	clone.BundleSignature = ""
	clone.SignatureKeyID = ""
	clone.SignatureAlgorithm = ""
	return json.Marshal(clone)
}
