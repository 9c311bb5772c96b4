package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/pipeline"
)

// ingestReport is the printed outcome of one "mesh ingest" run: the full
// Emit -> Validate -> Record -> Seal chain C6 defines, collapsed into a
// single-node walkthrough the way "mesh scenario" replays S1/S2 without a
// live multi-node mesh.
type ingestReport struct {
	Envelope   pipeline.Envelope      `json:"envelope"`
	Validation pipeline.Validation    `json:"validation"`
	Snapshot   *pipeline.Snapshot     `json:"snapshot,omitempty"`
	Seal       *pipeline.PipelineSeal `json:"seal,omitempty"`
}

// runIngestCmd implements "mesh ingest": it submits one claim payload
// through the C6 signed envelope pipeline end to end against this node's
// own logs. Edge.Emit signs and appends the envelope, Validator.Validate
// verifies it and appends a verdict, an ACCEPT verdict folds into the
// Aggregator's per-claim snapshot, and SealAuthority chains the
// snapshot's hash into the seal log. A node that only ever ran "mesh run"
// never produces any of these four logs; this is their entrypoint.
func runIngestCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	claimID := fs.String("claim-id", "", "claim the envelope's payload supports (required)")
	payloadPath := fs.String("payload", "", "path to a JSON payload document (default: read stdin)")
	role := fs.String("role", "edge", "envelope role recorded on Emit/Seal")
	staleAfter := fs.Duration("stale-after", 5*time.Minute, "validator freshness window")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *claimID == "" {
		fmt.Fprintln(stderr, "mesh ingest: --claim-id is required")
		return 2
	}

	cfg := config.Load()
	node, err := openNode(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "mesh ingest: %v\n", err)
		return 1
	}

	var payloadReader io.Reader = os.Stdin
	if *payloadPath != "" {
		f, err := os.Open(*payloadPath)
		if err != nil {
			fmt.Fprintf(stderr, "mesh ingest: open --payload: %v\n", err)
			return 1
		}
		defer f.Close()
		payloadReader = f
	}
	var payload interface{}
	if err := json.NewDecoder(payloadReader).Decode(&payload); err != nil {
		fmt.Fprintf(stderr, "mesh ingest: decode payload: %v\n", err)
		return 2
	}

	key := func(kind string) logstore.Key {
		return logstore.Key{Tenant: cfg.TenantID, Node: cfg.NodeID, Kind: kind}
	}

	// The validator resolves signatures by key_id through a keyring rather
	// than a single provider, so historical/rotated keys stay verifiable;
	// this node's current signer is the ring's sole (active) entry.
	keyring := cryptoprovider.NewKeyring()
	keyring.Rotate(node.Signer)

	edge := pipeline.NewEdge(cfg.TenantID, cfg.NodeID, node.Signer, node.Store.Log(key("pipeline_envelope")))
	edge.Clock = cfg.Clock()
	env, err := edge.Emit(uuid.New().String(), *role, payload)
	if err != nil {
		recordIncident(node, "pipeline.edge", err)
		fmt.Fprintf(stderr, "mesh ingest: emit: %v\n", err)
		return 1
	}

	validator := pipeline.NewValidator(cfg.NodeID, keyring, node.Store.Log(key("pipeline_validation")), *staleAfter)
	validator.Clock = cfg.Clock()
	validation, accepted, err := validator.Validate(env)
	if err != nil {
		recordIncident(node, "pipeline.validator", err)
		fmt.Fprintf(stderr, "mesh ingest: validate: %v\n", err)
		return 1
	}

	report := ingestReport{Envelope: env, Validation: validation}

	if accepted {
		aggregator := pipeline.NewAggregator(node.Store.Log(key("pipeline_aggregate")), singleNodeLocator(cfg.NodeID))
		aggregator.Clock = cfg.Clock()
		snapshot, err := aggregator.Record(*claimID, validation)
		if err != nil {
			recordIncident(node, "pipeline.aggregator", err)
			fmt.Fprintf(stderr, "mesh ingest: record: %v\n", err)
			return 1
		}
		report.Snapshot = snapshot

		if snapshot != nil {
			sealer, err := pipeline.NewSealAuthority(node.Store.Log(key("pipeline_seal")))
			if err != nil {
				fmt.Fprintf(stderr, "mesh ingest: open seal authority: %v\n", err)
				return 1
			}
			sealer.Clock = cfg.Clock()
			sealed, err := sealer.Seal(cfg.ScoringPolicyHash, snapshot.SnapshotHash, *role)
			if err != nil {
				recordIncident(node, "pipeline.seal_authority", err)
				fmt.Fprintf(stderr, "mesh ingest: seal: %v\n", err)
				return 1
			}
			report.Seal = &sealed
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(stderr, "mesh ingest: encode report: %v\n", err)
		return 1
	}
	return 0
}

// singleNodeLocator is the CLI's ValidatorLocator: in this single-process
// walkthrough every validator is this node itself, so region/correlation
// group are fixed rather than looked up from a peer directory the way a
// live multi-node mesh would resolve them.
func singleNodeLocator(nodeID string) pipeline.ValidatorLocator {
	return func(validatorNodeID string) (string, string) {
		return "local", "cg-" + nodeID
	}
}
