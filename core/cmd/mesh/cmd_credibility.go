package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/policyloader"
	"github.com/distributed-credibility/mesh/core/pkg/scoring"
)

// runCredibilitySnapshotCmd implements "credibility snapshot": it
// evaluates the configured scoring policy (or the default one, if none is
// loaded) against the six component values given on the command line and
// prints the resulting Result — the same shape GET .../credibility/
// snapshot serves, runnable without a live node for scripting and the
// money-demo scenario walkthroughs.
func runCredibilitySnapshotCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("credibility snapshot", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var c scoring.Components
	fs.Float64Var(&c.TierIntegrity, "tier-integrity", 0, "tier_integrity component value")
	fs.Float64Var(&c.DriftPenalty, "drift-penalty", 0, "drift_penalty component value")
	fs.Float64Var(&c.CorrelationRisk, "correlation-risk", 0, "correlation_risk component value")
	fs.Float64Var(&c.QuorumMargin, "quorum-margin", 0, "quorum_margin component value")
	fs.Float64Var(&c.TTLExpiration, "ttl-expiration", 0, "ttl_expiration component value")
	fs.Float64Var(&c.ConfirmationBonus, "confirmation-bonus", 0, "confirmation_bonus component value")

	policyBundleDir := fs.String("policy-bundle", "", "directory of signed policy bundles (default: compiled-in default policy)")
	policyName := fs.String("policy-name", "default", "named scoring policy within --policy-bundle to use")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()

	policy, err := resolvePolicy(*policyBundleDir, *policyName)
	if err != nil {
		fmt.Fprintf(stderr, "credibility snapshot: %v\n", err)
		return 1
	}

	result, err := scoring.Score(cfg.TenantID, c, policy, cfg.Clock())
	if err != nil {
		fmt.Fprintf(stderr, "credibility snapshot: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "credibility snapshot: encode result: %v\n", err)
		return 1
	}
	return 0
}

func resolvePolicy(bundleDir, name string) (*scoring.Policy, error) {
	if bundleDir == "" {
		return scoring.DefaultPolicy()
	}
	loader := policyloader.NewLoader(bundleDir)
	if err := loader.LoadAll(); err != nil {
		return nil, fmt.Errorf("load policy bundles from %s: %w", bundleDir, err)
	}
	return loader.CompileScoringPolicy(name)
}
