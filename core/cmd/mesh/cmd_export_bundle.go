package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/distributed-credibility/mesh/core/pkg/artifacts"
	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
)

// runExportBundleCmd implements "export-bundle": it reads a verify-pack
// directory (the same layout "seal" + "verify-pack" produce/consume) and
// pushes its files into a content-addressed artifact store, returning a
// signed manifest — the sealed run bundle of spec §4.14, destined for the
// off-node storage targets (filesystem, S3, GCS) pkg/artifacts' factory
// selects via ARTIFACT_STORAGE_TYPE.
func runExportBundleCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export-bundle", flag.ContinueOnError)
	fs.SetOutput(stderr)

	pack := fs.String("pack", "", "path to the sealed run's verify-pack directory (required)")
	runID := fs.String("run-id", "", "run identifier recorded in the manifest (required)")
	decisionID := fs.String("decision-id", "", "decision ID recorded in the manifest (required)")
	commitHash := fs.String("commit-hash", "", "the seal's commit_hash (required)")
	signAlgo := fs.String("sign-algo", "", "cryptoprovider backend to sign the manifest with (default: configured backend)")
	signKeyID := fs.String("sign-key-id", "", "signing key ID (default: configured node ID)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *pack == "" || *runID == "" || *decisionID == "" || *commitHash == "" {
		fmt.Fprintln(stderr, "export-bundle: --pack, --run-id, --decision-id, and --commit-hash are required")
		return 2
	}

	cfg := config.Load()
	backend := cfg.CryptoBackend
	if *signAlgo != "" {
		backend = cryptoprovider.Backend(*signAlgo)
	}
	keyID := cfg.NodeID
	if *signKeyID != "" {
		keyID = *signKeyID
	}

	signer, err := buildSigner(backend, cfg.StorageRoot, keyID)
	if err != nil {
		fmt.Fprintf(stderr, "export-bundle: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "export-bundle: build artifact store: %v\n", err)
		return 1
	}

	registry := artifacts.NewRegistry(store).WithClock(cfg.Clock())
	manifest, err := registry.ExportBundle(ctx, *pack, *runID, *decisionID, *commitHash, signer)
	if err != nil {
		fmt.Fprintf(stderr, "export-bundle: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		fmt.Fprintf(stderr, "export-bundle: encode manifest: %v\n", err)
		return 1
	}
	return 0
}
