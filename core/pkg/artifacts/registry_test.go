package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
)

func writePack(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		BundleFileSeal:         `{"commit_hash":"sha256:abc"}`,
		BundleFileTransparency: `{"seq":1}`,
		BundleFileAuthority:    `{"entry_id":"e1"}`,
		BundleFileProvenance:   `{"provenance_hash":"sha256:def"}`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestExportBundleSkipsMissingOptionalFiles(t *testing.T) {
	packDir := t.TempDir()
	writePack(t, packDir)
	// abp.json intentionally absent — verification didn't require it.

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	signer, err := cryptoprovider.Select(cryptoprovider.BackendEd25519A, "node-a", nil, nil)
	require.NoError(t, err)

	reg := NewRegistry(store).WithClock(func() time.Time {
		return time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)
	})

	manifest, err := reg.ExportBundle(context.Background(), packDir, "run-1", "dec-1", "sha256:abc", signer)
	require.NoError(t, err)
	require.Len(t, manifest.Files, 4)
	require.NotEmpty(t, manifest.BundleSignature)
}

func TestExportBundleRequiresAtLeastOneFile(t *testing.T) {
	packDir := t.TempDir()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	reg := NewRegistry(store)
	_, err = reg.ExportBundle(context.Background(), packDir, "run-1", "dec-1", "sha256:abc", nil)
	require.Error(t, err)
}

func TestExportThenRestoreBundleRoundTrip(t *testing.T) {
	packDir := t.TempDir()
	writePack(t, packDir)

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	reg := NewRegistry(store)
	manifest, err := reg.ExportBundle(context.Background(), packDir, "run-1", "dec-1", "sha256:abc", nil)
	require.NoError(t, err)

	restoreDir := t.TempDir()
	require.NoError(t, reg.RestoreBundle(context.Background(), manifest, restoreDir))

	original, err := os.ReadFile(filepath.Join(packDir, BundleFileSeal))
	require.NoError(t, err)
	restored, err := os.ReadFile(filepath.Join(restoreDir, BundleFileSeal))
	require.NoError(t, err)
	require.Equal(t, original, restored)
}
