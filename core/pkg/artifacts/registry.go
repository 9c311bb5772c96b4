package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
)

// bundleFiles lists the sealed-run-bundle files spec §4.14 names, in the
// order they're written into the manifest.
var bundleFiles = []string{
	BundleFileSeal,
	BundleFileABP,
	BundleFileTransparency,
	BundleFileAuthority,
	BundleFileProvenance,
}

// Registry exports a verify-pack directory (the same layout pkg/verifier
// reads back with VerifyPack) into a content-addressed Store, and restores
// one back onto disk from a signed manifest.
type Registry struct {
	store Store
	clock func() time.Time
}

// NewRegistry creates a Registry backed by store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, clock: time.Now}
}

// WithClock overrides the manifest timestamp source, for deterministic
// tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// ExportBundle stores every file bundleFiles names under packDir into r's
// CAS, builds a signed Manifest referencing their content hashes, and
// returns it. Missing optional files (abp.json when verification didn't
// require it) are skipped rather than failing the export.
func (r *Registry) ExportBundle(ctx context.Context, packDir, runID, decisionID, commitHash string, signer cryptoprovider.Provider) (Manifest, error) {
	manifest := Manifest{
		RunID:      runID,
		DecisionID: decisionID,
		CommitHash: commitHash,
		SealedAt:   r.clock(),
	}

	for _, name := range bundleFiles {
		data, err := os.ReadFile(filepath.Join(packDir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Manifest{}, fmt.Errorf("artifacts: read %s: %w", name, err)
		}

		hash, err := r.store.Store(ctx, data)
		if err != nil {
			return Manifest{}, fmt.Errorf("artifacts: store %s: %w", name, err)
		}
		manifest.Files = append(manifest.Files, ManifestEntry{Name: name, Hash: hash, Size: len(data)})
	}

	if len(manifest.Files) == 0 {
		return Manifest{}, fmt.Errorf("artifacts: %s has none of the expected bundle files", packDir)
	}

	if signer != nil {
		signed, err := SignManifest(manifest, signer)
		if err != nil {
			return Manifest{}, err
		}
		manifest = signed
	}

	manifestName := fmt.Sprintf("RUN-%s_%s.json", shortHash(commitHash), manifest.SealedAt.UTC().Format(time.RFC3339))
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return Manifest{}, fmt.Errorf("artifacts: marshal manifest: %w", err)
	}
	if _, err := r.store.Store(ctx, manifestBytes); err != nil {
		return Manifest{}, fmt.Errorf("artifacts: store manifest %s: %w", manifestName, err)
	}

	return manifest, nil
}

// RestoreBundle writes every file manifest.Files names back into destDir,
// reading each blob out of r's CAS by its recorded hash.
func (r *Registry) RestoreBundle(ctx context.Context, manifest Manifest, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("artifacts: mkdir %s: %w", destDir, err)
	}

	for _, entry := range manifest.Files {
		data, err := r.store.Get(ctx, entry.Hash)
		if err != nil {
			return fmt.Errorf("artifacts: get %s (%s): %w", entry.Name, entry.Hash, err)
		}
		if len(data) != entry.Size {
			return fmt.Errorf("artifacts: %s size mismatch: manifest says %d, got %d", entry.Name, entry.Size, len(data))
		}
		if err := os.WriteFile(filepath.Join(destDir, entry.Name), data, 0o644); err != nil {
			return fmt.Errorf("artifacts: write %s: %w", entry.Name, err)
		}
	}
	return nil
}

func shortHash(commitHash string) string {
	h := commitHash
	if len(h) > 7 && h[:7] == "sha256:" {
		h = h[7:]
	}
	if len(h) > 8 {
		h = h[:8]
	}
	return h
}
