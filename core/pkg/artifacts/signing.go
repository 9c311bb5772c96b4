package artifacts

import (
	"errors"
	"fmt"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
)

var ErrSignerNotConfigured = errors.New("artifacts: signer not configured (fail-closed)")

// SignManifest signs manifest (with its signature fields blanked) with
// signer and stamps the signature, key ID and algorithm onto the returned
// copy.
func SignManifest(manifest Manifest, signer cryptoprovider.Provider) (Manifest, error) {
	if signer == nil {
		return Manifest{}, ErrSignerNotConfigured
	}
	if len(manifest.Files) == 0 {
		return Manifest{}, errors.New("artifacts: manifest has no files")
	}

	payload, err := manifest.signingPayload()
	if err != nil {
		return Manifest{}, fmt.Errorf("artifacts: marshal manifest: %w", err)
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		return Manifest{}, fmt.Errorf("artifacts: sign manifest: %w", err)
	}

	manifest.BundleSignature = sig.Value
	manifest.SignatureKeyID = sig.KeyID
	manifest.SignatureAlgorithm = sig.Algorithm
	return manifest, nil
}

// VerifyManifestSignature checks manifest's BundleSignature against
// verifier, using the algorithm and key ID already stamped on the manifest.
func VerifyManifestSignature(manifest Manifest, verifier cryptoprovider.Provider) (bool, error) {
	if verifier == nil {
		return false, ErrSignerNotConfigured
	}
	if manifest.BundleSignature == "" || manifest.SignatureKeyID == "" {
		return false, errors.New("artifacts: manifest missing signature or key_id")
	}

	payload, err := manifest.signingPayload()
	if err != nil {
		return false, fmt.Errorf("artifacts: marshal manifest: %w", err)
	}

	ok, err := verifier.Verify(payload, cryptoprovider.Signature{
		Algorithm: manifest.SignatureAlgorithm,
		KeyID:     manifest.SignatureKeyID,
		Value:     manifest.BundleSignature,
	})
	if err != nil {
		return false, fmt.Errorf("artifacts: verify manifest: %w", err)
	}
	return ok, nil
}
