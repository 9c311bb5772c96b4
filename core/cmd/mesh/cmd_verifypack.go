package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
	"github.com/distributed-credibility/mesh/core/pkg/verifier"
)

// runVerifyPackCmd implements "verify-pack --pack --key [--require-abp]",
// the zero-trust offline auditor of spec §4.14: it never touches a live
// node, only the files under --pack and the verification key supplied on
// the command line.
func runVerifyPackCmd(args []string, stdout, stderr io.Writer) meshrr.ExitCode {
	fs := flag.NewFlagSet("verify-pack", flag.ContinueOnError)
	fs.SetOutput(stderr)

	pack := fs.String("pack", "", "path to the admissibility pack directory (required)")
	key := fs.String("key", "", "hex-encoded Ed25519 public key, or HMAC demo secret (required)")
	algo := fs.String("algo", string(cryptoprovider.BackendEd25519A), "verification backend: ed25519_a|ed25519_b|hmac_demo")
	requireABP := fs.Bool("require-abp", false, "fail if the pack has no abp.json")
	strict := fs.Bool("strict", false, "fail if any hash_scope input is missing on disk")
	expectedProvenance := fs.String("expected-provenance-hash", "", "provenance_hash to require (default: internal consistency only)")
	jsonOutput := fs.Bool("json", false, "print the full VerifyReport as JSON")

	if err := fs.Parse(args); err != nil {
		return meshrr.ExitSchema
	}
	if *pack == "" || *key == "" {
		fmt.Fprintln(stderr, "verify-pack: --pack and --key are required")
		return meshrr.ExitSchema
	}

	v, err := buildVerificationProvider(cryptoprovider.Backend(*algo), *key)
	if err != nil {
		fmt.Fprintf(stderr, "verify-pack: %v\n", err)
		return meshrr.ExitSchema
	}

	report, exitCode := verifier.VerifyPack(*pack, verifier.Options{
		Verifier:               v,
		RequireABP:             *requireABP,
		Strict:                 *strict,
		ExpectedProvenanceHash: *expectedProvenance,
	})

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		fmt.Fprintf(stdout, "%s: %s\n", report.Pack, report.Summary)
		for _, c := range report.Checks {
			status := "PASS"
			if !c.Pass {
				status = "FAIL"
			}
			fmt.Fprintf(stdout, "  %-28s %s", c.Name, status)
			if c.Detail != "" {
				fmt.Fprintf(stdout, " (%s)", c.Detail)
			}
			fmt.Fprintln(stdout)
		}
	}

	return exitCode
}

// buildVerificationProvider builds a verify-only cryptoprovider.Provider
// from a verification key supplied as a command-line string, without ever
// holding a usable private key: for the Ed25519 variants, key is the
// 32-byte public key hex, zero-extended into the 64-byte private-key slot
// ed25519.PrivateKey.Public() expects (Public() only reads the trailing
// 32 bytes, so Sign stays unusable while Verify is fully correct). For
// the HMAC demo backend, key is the shared secret itself.
func buildVerificationProvider(backend cryptoprovider.Backend, key string) (cryptoprovider.Provider, error) {
	switch backend {
	case cryptoprovider.BackendEd25519A, cryptoprovider.BackendEd25519B:
		pub, err := hex.DecodeString(key)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("--key must be a %d-byte hex Ed25519 public key", ed25519.PublicKeySize)
		}
		fake := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
		copy(fake[32:], pub)
		return cryptoprovider.Select(backend, "verify-pack", fake, nil)
	case cryptoprovider.BackendHMACDemo:
		return cryptoprovider.Select(backend, "verify-pack", nil, []byte(key))
	default:
		return nil, fmt.Errorf("unknown --algo %q", backend)
	}
}
