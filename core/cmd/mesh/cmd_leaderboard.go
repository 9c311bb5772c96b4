package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/scoring"
)

// tenantComponents is one row of a "credibility leaderboard" batch input:
// a tenant ID paired with the six component values "credibility snapshot"
// otherwise takes on the command line one tenant at a time.
type tenantComponents struct {
	TenantID   string             `json:"tenant_id"`
	Components scoring.Components `json:"components"`
}

// runCredibilityLeaderboardCmd implements "credibility leaderboard": it
// scores every tenant in --input under the same policy "credibility
// snapshot" uses, ranks them by Score, and prints the resulting
// scoring.Snapshot — the cross-tenant view spec §4.10's scoring component
// implies but never gives its own operation, useful wherever an operator
// compares many tenants' standing side by side (a federation dashboard, a
// money-demo leaderboard walkthrough) instead of scoring one at a time.
func runCredibilityLeaderboardCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("credibility leaderboard", flag.ContinueOnError)
	fs.SetOutput(stderr)

	input := fs.String("input", "", "path to a JSON array of {tenant_id, components} (required)")
	policyBundleDir := fs.String("policy-bundle", "", "directory of signed policy bundles (default: compiled-in default policy)")
	policyName := fs.String("policy-name", "default", "named scoring policy within --policy-bundle to use")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *input == "" {
		fmt.Fprintln(stderr, "credibility leaderboard: --input is required")
		return 2
	}

	raw, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(stderr, "credibility leaderboard: read --input: %v\n", err)
		return 1
	}
	var rows []tenantComponents
	if err := json.Unmarshal(raw, &rows); err != nil {
		fmt.Fprintf(stderr, "credibility leaderboard: parse --input: %v\n", err)
		return 1
	}

	cfg := config.Load()
	policy, err := resolvePolicy(*policyBundleDir, *policyName)
	if err != nil {
		fmt.Fprintf(stderr, "credibility leaderboard: %v\n", err)
		return 1
	}

	board := scoring.NewLeaderboard()
	for _, row := range rows {
		result, err := scoring.Score(row.TenantID, row.Components, policy, cfg.Clock())
		if err != nil {
			fmt.Fprintf(stderr, "credibility leaderboard: score %s: %v\n", row.TenantID, err)
			return 1
		}
		board.Update(result)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(board.Snapshot(cfg.Clock())); err != nil {
		fmt.Fprintf(stderr, "credibility leaderboard: encode snapshot: %v\n", err)
		return 1
	}
	return 0
}
