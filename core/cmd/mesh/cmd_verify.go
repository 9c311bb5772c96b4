package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// runVerifyCmd checks this node's own hash chains — the authority ledger
// and the transparency log — for tamper, distinct from the standalone
// verify-pack command which audits an exported pack offline without
// trusting a live node at all.
func runVerifyCmd(args []string, stdout, stderr io.Writer) meshrr.ExitCode {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return meshrr.ExitSchema
	}

	cfg := config.Load()
	node, err := openNode(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "mesh verify: %v\n", err)
		return meshrr.ExitMissingFile
	}

	ok := true
	if err := node.Authority.VerifyChain(); err != nil {
		fmt.Fprintf(stdout, "authority_ledger: FAIL (%v)\n", err)
		recordIncident(node, "authority_ledger", err)
		ok = false
	} else {
		fmt.Fprintln(stdout, "authority_ledger: PASS")
	}

	if err := node.TLog.VerifyChain(); err != nil {
		fmt.Fprintf(stdout, "transparency_log: FAIL (%v)\n", err)
		recordIncident(node, "transparency_log", err)
		ok = false
	} else {
		fmt.Fprintln(stdout, "transparency_log: PASS")
	}

	if !ok {
		return meshrr.ExitHashMismatch
	}
	return meshrr.ExitValid
}
