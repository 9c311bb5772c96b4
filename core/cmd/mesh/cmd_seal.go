package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/seal"
)

// runSealCmd implements the "seal" command of spec §6:
// seal --decision-id --clock --sign-algo --sign-key-id
//
// hash_scope is read as JSON from --hash-scope (a file path) or stdin
// when that flag is omitted, since the spec's CLI surface names no flag
// for supplying it directly; everything else sealed inputs need — the
// inputs/prompts/policies/schemas list — lives in that document.
func runSealCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	fs.SetOutput(stderr)

	decisionID := fs.String("decision-id", "", "decision episode ID (required)")
	clockArg := fs.String("clock", "", "RFC3339 instant to seal under (default: now)")
	signAlgo := fs.String("sign-algo", "", "cryptoprovider backend: ed25519_a|ed25519_b|hmac_demo (default: configured backend)")
	signKeyID := fs.String("sign-key-id", "", "signing key ID (default: configured node ID)")
	hashScopePath := fs.String("hash-scope", "", "path to a hash_scope JSON document (default: read stdin)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *decisionID == "" {
		fmt.Fprintln(stderr, "seal: --decision-id is required")
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

	clock := cfg.Clock()
	if *clockArg != "" {
		fixed, err := time.Parse(time.RFC3339, *clockArg)
		if err != nil {
			fmt.Fprintf(stderr, "seal: invalid --clock: %v\n", err)
			return 2
		}
		clock = func() time.Time { return fixed }
	}

	var scopeReader io.Reader = os.Stdin
	if *hashScopePath != "" {
		f, err := os.Open(*hashScopePath)
		if err != nil {
			fmt.Fprintf(stderr, "seal: open --hash-scope: %v\n", err)
			return 4
		}
		defer f.Close()
		scopeReader = f
	}

	var scope seal.HashScope
	if err := json.NewDecoder(scopeReader).Decode(&scope); err != nil {
		fmt.Fprintf(stderr, "seal: decode hash_scope: %v\n", err)
		return 2
	}

	signer, err := buildSigner(backend, cfg.StorageRoot, keyID)
	if err != nil {
		fmt.Fprintf(stderr, "seal: %v\n", err)
		return 1
	}

	sealed, err := seal.Build(*decisionID, scope, signer, clock)
	if err != nil {
		fmt.Fprintf(stderr, "seal: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sealed); err != nil {
		fmt.Fprintf(stderr, "seal: encode result: %v\n", err)
		return 1
	}
	return 0
}
