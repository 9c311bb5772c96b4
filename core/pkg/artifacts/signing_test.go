package artifacts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
)

func testManifest() Manifest {
	return Manifest{
		RunID:      "run-1",
		DecisionID: "dec-1",
		CommitHash: "sha256:abc",
		SealedAt:   time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC),
		Files:      []ManifestEntry{{Name: BundleFileSeal, Hash: "sha256:111", Size: 10}},
	}
}

func TestSignManifestThenVerify(t *testing.T) {
	signer, err := cryptoprovider.Select(cryptoprovider.BackendEd25519A, "node-a", nil, nil)
	require.NoError(t, err)

	signed, err := SignManifest(testManifest(), signer)
	require.NoError(t, err)
	require.NotEmpty(t, signed.BundleSignature)

	ok, err := VerifyManifestSignature(signed, signer)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyManifestSignatureDetectsTamper(t *testing.T) {
	signer, err := cryptoprovider.Select(cryptoprovider.BackendEd25519A, "node-a", nil, nil)
	require.NoError(t, err)

	signed, err := SignManifest(testManifest(), signer)
	require.NoError(t, err)

	tampered := signed
	tampered.Files = append([]ManifestEntry{}, signed.Files...)
	tampered.Files[0].Hash = "sha256:222"

	ok, err := VerifyManifestSignature(tampered, signer)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignManifestRequiresSigner(t *testing.T) {
	_, err := SignManifest(testManifest(), nil)
	require.ErrorIs(t, err, ErrSignerNotConfigured)
}
