package abp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
)

// CheckName enumerates the eight verification checks of spec §4.5, each
// reported individually rather than collapsed into one pass/fail.
type CheckName string

const (
	CheckSchemaConformance CheckName = "schema_conformance"
	CheckHashIntegrity     CheckName = "hash_integrity"
	CheckIDDeterminism     CheckName = "id_determinism"
	CheckAuthorityRefValid CheckName = "authority_ref_valid"
	CheckAuthorityNotExpired CheckName = "authority_not_expired"
	CheckCompositionValid  CheckName = "composition_valid"
	CheckNoContradictions  CheckName = "no_contradictions"
	CheckDelegationReview  CheckName = "delegation_review_valid"
)

// CheckResult is the outcome of a single verification check.
type CheckResult struct {
	Name   CheckName `json:"name"`
	Pass   bool      `json:"pass"`
	Detail string    `json:"detail,omitempty"`
}

// Report is the full eight-check verification outcome for one ABP.
type Report struct {
	ABPID    string        `json:"abp_id"`
	Checks   []CheckResult `json:"checks"`
	AllPass  bool          `json:"all_pass"`
}

func (r *Report) add(name CheckName, pass bool, detail string) {
	r.Checks = append(r.Checks, CheckResult{Name: name, Pass: pass, Detail: detail})
	if !pass {
		r.AllPass = false
	}
}

// Verify runs all eight checks against a, using ledger to resolve the
// authority_ref and schema (optional — nil skips check #1 with a pass, since
// schema availability is a deployment concern, not a structural one) to
// validate the marshaled ABP shape.
func Verify(a *ABP, ledger AuthorityResolver, schema *jsonschema.Schema) *Report {
	r := &Report{ABPID: a.ABPID, AllPass: true}

	verifySchema(r, a, schema)
	verifyHashIntegrity(r, a)
	verifyIDDeterminism(r, a)
	verifyAuthorityRef(r, a, ledger)
	verifyCompositionValid(r, a)
	verifyNoContradictions(r, a)
	verifyDelegationReview(r, a)

	return r
}

func verifySchema(r *Report, a *ABP, schema *jsonschema.Schema) {
	if schema == nil {
		r.add(CheckSchemaConformance, true, "no schema configured")
		return
	}
	b, err := json.Marshal(a)
	if err != nil {
		r.add(CheckSchemaConformance, false, "marshal failed: "+err.Error())
		return
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		r.add(CheckSchemaConformance, false, "unmarshal failed: "+err.Error())
		return
	}
	if err := schema.Validate(v); err != nil {
		r.add(CheckSchemaConformance, false, err.Error())
		return
	}
	r.add(CheckSchemaConformance, true, "")
}

func verifyHashIntegrity(r *Report, a *ABP) {
	recomputed, err := canonicalize.HashWithBlankedField(a, "hash")
	if err != nil {
		r.add(CheckHashIntegrity, false, err.Error())
		return
	}
	if recomputed != a.Hash {
		r.add(CheckHashIntegrity, false, fmt.Sprintf("stored %s != recomputed %s", a.Hash, recomputed))
		return
	}
	r.add(CheckHashIntegrity, true, "")
}

func verifyIDDeterminism(r *Report, a *ABP) {
	recomputed, err := computeABPID(a.Scope, a.AuthorityRef, a.CreatedAt)
	if err != nil {
		r.add(CheckIDDeterminism, false, err.Error())
		return
	}
	if recomputed != a.ABPID {
		r.add(CheckIDDeterminism, false, fmt.Sprintf("stored %s != recomputed %s", a.ABPID, recomputed))
		return
	}
	r.add(CheckIDDeterminism, true, "")
}

func verifyAuthorityRef(r *Report, a *ABP, ledger AuthorityResolver) {
	if ledger == nil {
		r.add(CheckAuthorityRefValid, false, "no authority ledger available")
		r.add(CheckAuthorityNotExpired, false, "no authority ledger available")
		return
	}

	entries := ledger.Entries()
	var matched *int
	for i, e := range entries {
		if e.AuthorityID == a.AuthorityRef.AuthorityID && e.EntryHash == a.AuthorityRef.EntryHash {
			idx := i
			matched = &idx
			break
		}
	}
	if matched == nil {
		r.add(CheckAuthorityRefValid, false, "referenced authority entry not found or hash mismatch")
		r.add(CheckAuthorityNotExpired, false, "cannot evaluate expiry: entry not found")
		return
	}
	entry := entries[*matched]

	revoked := false
	for _, e := range entries {
		if e.GrantType == "revocation" && e.RevokesAuthorityID == entry.AuthorityID && !e.ObservedAt.After(a.CreatedAt) {
			revoked = true
			break
		}
	}
	if revoked {
		r.add(CheckAuthorityRefValid, false, "authority revoked before abp created_at")
	} else {
		r.add(CheckAuthorityRefValid, true, "")
	}

	if entry.EffectiveAt.After(a.CreatedAt) {
		r.add(CheckAuthorityNotExpired, false, "authority not yet effective at created_at")
		return
	}
	if entry.ExpiresAt != nil && a.CreatedAt.After(*entry.ExpiresAt) {
		r.add(CheckAuthorityNotExpired, false, "authority expired before created_at")
		return
	}
	r.add(CheckAuthorityNotExpired, true, "")
}

func verifyCompositionValid(r *Report, a *ABP) {
	hasParentID := a.Composition.ParentABPID != ""
	hasParentHash := a.Composition.ParentABPHash != ""
	if hasParentID != hasParentHash {
		r.add(CheckCompositionValid, false, "parent_abp_id and parent_abp_hash must both be set or both absent")
		return
	}
	seen := make(map[string]struct{}, len(a.Composition.Children))
	for _, c := range a.Composition.Children {
		if _, ok := seen[c]; ok {
			r.add(CheckCompositionValid, false, "duplicate child id: "+c)
			return
		}
		seen[c] = struct{}{}
	}
	r.add(CheckCompositionValid, true, "")
}

func verifyNoContradictions(r *Report, a *ABP) {
	if err := checkContradictions(a); err != nil {
		r.add(CheckNoContradictions, false, err.Error())
		return
	}
	r.add(CheckNoContradictions, true, "")
}

func verifyDelegationReview(r *Report, a *ABP) {
	dr := a.DelegationReview
	if dr == nil {
		r.add(CheckDelegationReview, true, "absent")
		return
	}
	seen := make(map[string]struct{}, len(dr.Triggers))
	for _, t := range dr.Triggers {
		if _, ok := seen[t.ID]; ok {
			r.add(CheckDelegationReview, false, "duplicate trigger id: "+t.ID)
			return
		}
		seen[t.ID] = struct{}{}
		if t.Severity != "warn" && t.Severity != "critical" {
			r.add(CheckDelegationReview, false, "invalid trigger severity: "+t.Severity)
			return
		}
	}
	if strings.TrimSpace(dr.Policy.ApproverRole) == "" || strings.TrimSpace(dr.Policy.Output) == "" {
		r.add(CheckDelegationReview, false, "review_policy missing approver_role or output")
		return
	}
	r.add(CheckDelegationReview, true, "")
}
