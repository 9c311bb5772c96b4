package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
)

// loadOrGenerateKey reads the node's persisted Ed25519 private key from
// storageRoot/keys/<nodeID>.key, generating and persisting one on first
// boot. Key material never leaves storageRoot; "trust root" distribution
// happens out of band via the public half, same division the teacher's
// loadOrGenerateSigner in the former cmd/helm/main.go drew between signer
// and verifier.
func loadOrGenerateKey(storageRoot, nodeID string) (ed25519.PrivateKey, error) {
	dir := filepath.Join(storageRoot, "keys")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mesh: create key dir: %w", err)
	}
	path := filepath.Join(dir, nodeID+".key")

	raw, err := os.ReadFile(path)
	if err == nil {
		priv, decodeErr := hex.DecodeString(string(raw))
		if decodeErr != nil {
			return nil, fmt.Errorf("mesh: decode key file %s: %w", path, decodeErr)
		}
		return ed25519.PrivateKey(priv), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("mesh: read key file %s: %w", path, err)
	}

	_, priv, genErr := ed25519.GenerateKey(nil)
	if genErr != nil {
		return nil, fmt.Errorf("mesh: generate key: %w", genErr)
	}
	if writeErr := os.WriteFile(path, []byte(hex.EncodeToString(priv)), 0o600); writeErr != nil {
		return nil, fmt.Errorf("mesh: persist key file %s: %w", path, writeErr)
	}
	return priv, nil
}

// buildSigner selects and constructs the configured cryptoprovider variant
// for nodeID, loading (or generating) its Ed25519 key material first. HMAC
// demo mode needs no persisted key; its secret is derived from the node ID
// so it stays stable across restarts without a dedicated key file.
func buildSigner(backend cryptoprovider.Backend, storageRoot, nodeID string) (cryptoprovider.Provider, error) {
	switch backend {
	case cryptoprovider.BackendEd25519A, cryptoprovider.BackendEd25519B:
		priv, err := loadOrGenerateKey(storageRoot, nodeID)
		if err != nil {
			return nil, err
		}
		return cryptoprovider.Select(backend, nodeID, priv, nil)
	case cryptoprovider.BackendHMACDemo:
		return cryptoprovider.Select(backend, nodeID, nil, []byte("demo-secret-"+nodeID))
	default:
		return nil, fmt.Errorf("mesh: unknown crypto backend %q", backend)
	}
}
