// Command mesh is the node-local operator CLI of spec §6: it boots a
// node's server, seals and verifies decision packets, inspects the memory
// graph through IRIS, and drives the drift-to-patch lifecycle.
//
// Dispatch follows the teacher's former cmd/helm/main.go shape: a single
// Run(args, stdout, stderr) int entrypoint switching on args[1], with
// flag.FlagSet per subcommand rather than a CLI framework (none appears
// anywhere in the example pack).
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, factored out from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "seal":
		return runSealCmd(args[2:], stdout, stderr)
	case "verify-pack":
		return int(runVerifyPackCmd(args[2:], stdout, stderr))
	case "export-bundle":
		return runExportBundleCmd(args[2:], stdout, stderr)
	case "mesh":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "usage: mesh mesh <init|run|verify|scenario> [flags]")
			return 2
		}
		return dispatchMesh(args[2], args[3:], stdout, stderr)
	case "init":
		return runInitCmd(args[2:], stdout, stderr)
	case "run":
		return runRunCmd(args[2:], stdout, stderr)
	case "verify":
		return int(runVerifyCmd(args[2:], stdout, stderr))
	case "scenario":
		return runScenarioCmd(args[2:], stdout, stderr)
	case "credibility":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "usage: mesh credibility <snapshot|leaderboard> [flags]")
			return 2
		}
		switch args[2] {
		case "snapshot":
			return runCredibilitySnapshotCmd(args[3:], stdout, stderr)
		case "leaderboard":
			return runCredibilityLeaderboardCmd(args[3:], stdout, stderr)
		default:
			fmt.Fprintln(stderr, "usage: mesh credibility <snapshot|leaderboard> [flags]")
			return 2
		}
	case "iris":
		if len(args) < 3 || args[2] != "query" {
			fmt.Fprintln(stderr, "usage: mesh iris query --type {WHY,WHAT_DRIFTED,WHAT_CHANGED,RECALL,STATUS} [flags]")
			return 2
		}
		return runIrisQueryCmd(args[3:], stdout, stderr)
	case "drift-patch-cycle":
		return runDriftPatchCycleCmd(args[2:], stdout, stderr)
	case "ingest":
		return runIngestCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// dispatchMesh handles the "mesh init|run|verify|scenario" namespace when
// invoked through its fully qualified form (mesh mesh <sub>); the
// top-level "init"/"run"/"verify"/"scenario" aliases above cover the
// common case of a node operator running the binary directly.
func dispatchMesh(sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "init":
		return runInitCmd(args, stdout, stderr)
	case "run":
		return runRunCmd(args, stdout, stderr)
	case "verify":
		return int(runVerifyCmd(args, stdout, stderr))
	case "scenario":
		return runScenarioCmd(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown mesh subcommand: %s\n", sub)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "mesh — distributed credibility mesh node CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "usage: mesh <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  init                 initialize a node's storage root and signing key")
	fmt.Fprintln(w, "  run                  run the node's replication + Query API server")
	fmt.Fprintln(w, "  verify               verify local ledger/log chain integrity")
	fmt.Fprintln(w, "  scenario --name S1|S2   replay a spec end-to-end scenario")
	fmt.Fprintln(w, "  seal                 seal a decision episode (--decision-id --clock --sign-algo --sign-key-id)")
	fmt.Fprintln(w, "  verify-pack          verify an offline admissibility pack (--pack --key [--require-abp])")
	fmt.Fprintln(w, "  export-bundle        push a sealed run's pack files into the configured artifact store (--pack --run-id --decision-id --commit-hash)")
	fmt.Fprintln(w, "  credibility snapshot compute and print the local credibility index")
	fmt.Fprintln(w, "  credibility leaderboard  score and rank a batch of tenants (--input)")
	fmt.Fprintln(w, "  iris query           query the memory graph (--type WHY|WHAT_DRIFTED|WHAT_CHANGED|RECALL|STATUS)")
	fmt.Fprintln(w, "  drift-patch-cycle    drive one drift-detection-to-patch-approval cycle")
	fmt.Fprintln(w, "  ingest               submit a claim payload through the signed envelope pipeline (--claim-id --payload)")
}
