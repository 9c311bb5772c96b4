package abp

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// Gate is the pre-distribution check §4.5 requires before an HTML export
// (which embeds the ABP as a JSON blob) may ship: re-hash and re-verify the
// embedded ABP, and block distribution on any FAIL. Grounded on the
// teacher's pdp.PolicyDecisionPoint "fail-closed" contract (pkg/pdp/pdp.go)
// generalized from a request/response decision gate to an export-time
// artifact gate.
type Gate struct {
	Schema *jsonschema.Schema
	Ledger AuthorityResolver
}

// CheckExport parses the embedded ABP JSON blob, runs the full eight-check
// verification, and returns an error blocking distribution on any failure.
func (g *Gate) CheckExport(embeddedABPJSON []byte) (*Report, error) {
	var a ABP
	if err := json.Unmarshal(embeddedABPJSON, &a); err != nil {
		return nil, meshrr.Wrap(meshrr.KindInputInvalid, err, "abp gate: parse embedded blob")
	}

	report := Verify(&a, g.Ledger, g.Schema)
	if !report.AllPass {
		return report, meshrr.New(meshrr.KindPolicyViolation, "abp gate: export blocked, one or more checks failed")
	}
	return report, nil
}
