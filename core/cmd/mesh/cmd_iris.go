package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/config"
)

// runIrisQueryCmd implements "iris query --type {WHY,WHAT_DRIFTED,
// WHAT_CHANGED,RECALL,STATUS}" against this node's local memory graph —
// the CLI counterpart of the GET .../credibility/claims|drift endpoints,
// exposing all five IRIS query verbs rather than just the two the Query
// API wires up.
func runIrisQueryCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("iris query", flag.ContinueOnError)
	fs.SetOutput(stderr)

	queryType := fs.String("type", "", "WHY|WHAT_DRIFTED|WHAT_CHANGED|RECALL|STATUS (required)")
	episodeID := fs.String("episode-id", "", "episode ID for WHY")
	fromEpisode := fs.String("from-episode", "", "starting episode ID for WHAT_CHANGED")
	toEpisode := fs.String("to-episode", "", "ending episode ID for WHAT_CHANGED")
	entity := fs.String("entity", "", "entity ID for RECALL")
	since := fs.String("since", "", "RFC3339 lower bound for RECALL (default: zero time)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	node, err := openNode(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "iris query: %v\n", err)
		return 1
	}

	sinceTime, err := parseOptionalTime(*since)
	if err != nil {
		fmt.Fprintf(stderr, "iris query: --since: %v\n", err)
		return 2
	}

	var result interface{}
	switch strings.ToUpper(*queryType) {
	case "WHY":
		if *episodeID == "" {
			fmt.Fprintln(stderr, "iris query: --episode-id is required for WHY")
			return 2
		}
		result, err = node.Graph.Why(*episodeID)
	case "WHAT_DRIFTED":
		result, err = node.Graph.WhatDrifted()
	case "WHAT_CHANGED":
		if *fromEpisode == "" || *toEpisode == "" {
			fmt.Fprintln(stderr, "iris query: --from-episode and --to-episode are required for WHAT_CHANGED")
			return 2
		}
		result, err = node.Graph.WhatChanged(*fromEpisode, *toEpisode)
	case "RECALL":
		if *entity == "" {
			fmt.Fprintln(stderr, "iris query: --entity is required for RECALL")
			return 2
		}
		result, err = node.Graph.Recall(*entity, sinceTime)
	case "STATUS":
		result, err = node.Graph.Status()
	default:
		fmt.Fprintf(stderr, "iris query: unknown --type %q\n", *queryType)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "iris query: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "iris query: encode result: %v\n", err)
		return 1
	}
	return 0
}

func parseOptionalTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
