package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/drift"
	"github.com/distributed-credibility/mesh/core/pkg/patch"
)

// cycleReport is the printed outcome of one drift-patch-cycle run.
type cycleReport struct {
	Signal      drift.Signal      `json:"signal"`
	Escalation  *drift.Escalation `json:"escalation,omitempty"`
	PatchRecord patch.Record      `json:"patch"`
}

// runDriftPatchCycleCmd implements "drift-patch-cycle": it records one
// drift signal (read as JSON from --signal or stdin), proposes the patch
// §4.11 recommends for that drift type, and walks it through approval to
// Applied — auto-approving every required role with the CLI-supplied
// --approver identity, standing in for the operator/governance-lead
// workflow a real deployment would gate behind the Query API instead.
func runDriftPatchCycleCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("drift-patch-cycle", flag.ContinueOnError)
	fs.SetOutput(stderr)

	signalPath := fs.String("signal", "", "path to a drift.Signal JSON document (default: read stdin)")
	rollbackPlan := fs.String("rollback-plan", "revert to prior policy version", "patch record's rollback_plan")
	expectedCIImpact := fs.Float64("expected-ci-impact", 0, "patch record's expected_ci_impact")
	approver := fs.String("approver", "cli-operator", "approver ID recorded against every required role")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()

	var sigReader io.Reader = os.Stdin
	if *signalPath != "" {
		f, err := os.Open(*signalPath)
		if err != nil {
			fmt.Fprintf(stderr, "drift-patch-cycle: open --signal: %v\n", err)
			return 1
		}
		defer f.Close()
		sigReader = f
	}

	var sig drift.Signal
	if err := json.NewDecoder(sigReader).Decode(&sig); err != nil {
		fmt.Fprintf(stderr, "drift-patch-cycle: decode signal: %v\n", err)
		return 2
	}
	if sig.RecommendedPatchType == "" {
		sig.RecommendedPatchType = drift.PatchTypeFor(sig.DriftType)
	}

	registry := drift.NewRegistry().WithClock(cfg.Clock())
	escalation := registry.Record(sig)

	record, err := patch.Propose(patch.ProposeInput{
		DriftRef:         sig.DriftID,
		RollbackPlan:     *rollbackPlan,
		ExpectedCIImpact: *expectedCIImpact,
		Severity:         sig.Severity,
	}, cfg.Clock())
	if err != nil {
		fmt.Fprintf(stderr, "drift-patch-cycle: propose patch: %v\n", err)
		return 1
	}

	for _, role := range patch.RequiredApprovals(sig.Severity) {
		if record.Status != patch.StatusProposed {
			break
		}
		record, err = patch.Approve(record, role, *approver, cfg.Clock())
		if err != nil {
			fmt.Fprintf(stderr, "drift-patch-cycle: approve as %s: %v\n", role, err)
			return 1
		}
	}

	if record.Status == patch.StatusApproved {
		record, err = patch.Apply(record)
		if err != nil {
			fmt.Fprintf(stderr, "drift-patch-cycle: apply patch: %v\n", err)
			return 1
		}
	}

	if cfg.PatchStoreDSN != "" {
		if err := persistPatchRecord(cfg.PatchStoreDSN, record); err != nil {
			fmt.Fprintf(stderr, "drift-patch-cycle: persist to patch store: %v\n", err)
			return 1
		}
	}

	report := cycleReport{Signal: sig, Escalation: escalation, PatchRecord: record}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(stderr, "drift-patch-cycle: encode report: %v\n", err)
		return 1
	}
	return 0
}

// persistPatchRecord upserts record into the Postgres-backed patch store
// named by dsn, for multi-node deployments where patch state must be
// visible outside this CLI invocation's own process (pkg/patch.PostgresStore).
func persistPatchRecord(dsn string, record patch.Record) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open patch store: %w", err)
	}
	defer db.Close()

	store := patch.NewPostgresStore(db)
	return store.Put(context.Background(), record)
}
