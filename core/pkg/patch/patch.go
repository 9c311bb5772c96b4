// Package patch implements C12: the additive-only Patch & Re-seal Engine.
// Every correction is a new record and a new sealed episode; the original
// sealed episode a patch responds to is never modified.
//
// Grounded on the teacher's pkg/receipts/policies — EffectType-keyed
// policy table plus a PolicyEnforcer that validates prerequisites before
// execution and the receipt afterward — adapted here from effect-type
// approval policy to drift-severity approval policy (auto/owner/
// reviewer+governance-lead).
package patch

import (
	"fmt"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

// ApprovalRole is a role capable of approving a patch.
type ApprovalRole string

const (
	RoleAuto           ApprovalRole = "auto"
	RoleOwner          ApprovalRole = "owner"
	RoleReviewer       ApprovalRole = "reviewer"
	RoleGovernanceLead ApprovalRole = "governance_lead"
)

// RequiredApprovals implements §4.12's per-severity approval policy:
// green patches auto-apply, yellow needs the owner, red needs both a
// reviewer and the governance lead.
func RequiredApprovals(severity claims.StatusLight) []ApprovalRole {
	switch severity {
	case claims.StatusRed:
		return []ApprovalRole{RoleReviewer, RoleGovernanceLead}
	case claims.StatusYellow:
		return []ApprovalRole{RoleOwner}
	default:
		return []ApprovalRole{RoleAuto}
	}
}

// Status is a patch's lifecycle state.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusApproved Status = "approved"
	StatusApplied  Status = "applied"
	StatusFailed   Status = "failed"
)

// Approval records one role's sign-off on a patch.
type Approval struct {
	Role       ApprovalRole `json:"role"`
	ApproverID string       `json:"approver_id"`
	ApprovedAt time.Time    `json:"approved_at"`
}

// Record is a patch record per §4.12: {patch_id, drift_ref, rollback_plan,
// expected_ci_impact}, plus the approval/status bookkeeping that gates
// Apply.
type Record struct {
	PatchID          string             `json:"patch_id"`
	DriftRef         string             `json:"drift_ref"`
	RollbackPlan     string             `json:"rollback_plan"`
	ExpectedCIImpact float64            `json:"expected_ci_impact"`
	Severity         claims.StatusLight `json:"severity"`
	Status           Status             `json:"status"`
	Approvals        []Approval         `json:"approvals"`
	CreatedAt        time.Time          `json:"created_at"`
	FailureRef       string             `json:"failure_ref,omitempty"`
}

// ProposeInput carries everything needed to mint a new patch record.
type ProposeInput struct {
	DriftRef         string
	RollbackPlan     string
	ExpectedCIImpact float64
	Severity         claims.StatusLight
}

// idInput is hashed to derive a patch_id deterministically from its
// proposal content and creation time, the same "hash the meaningful
// fields" idiom canonicalize.Hash is used for everywhere else.
type idInput struct {
	DriftRef     string             `json:"drift_ref"`
	RollbackPlan string             `json:"rollback_plan"`
	Severity     claims.StatusLight `json:"severity"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Propose creates a new patch record in the proposed state. A green
// patch is pre-satisfied (auto role is granted immediately) since §4.12
// allows auto-apply at that severity.
func Propose(in ProposeInput, clock func() time.Time) (Record, error) {
	now := clock()
	h, err := canonicalize.Hash(idInput{
		DriftRef:     in.DriftRef,
		RollbackPlan: in.RollbackPlan,
		Severity:     in.Severity,
		CreatedAt:    now,
	})
	if err != nil {
		return Record{}, fmt.Errorf("patch: hash proposal: %w", err)
	}
	digest := h[len(canonicalize.HashPrefix):]
	if len(digest) > 8 {
		digest = digest[:8]
	}

	r := Record{
		PatchID:          "PATCH-" + digest,
		DriftRef:         in.DriftRef,
		RollbackPlan:     in.RollbackPlan,
		ExpectedCIImpact: in.ExpectedCIImpact,
		Severity:         in.Severity,
		Status:           StatusProposed,
		CreatedAt:        now,
	}
	if in.Severity != claims.StatusRed && in.Severity != claims.StatusYellow {
		r.Approvals = append(r.Approvals, Approval{Role: RoleAuto, ApproverID: "system", ApprovedAt: now})
	}
	if satisfied(r) {
		r.Status = StatusApproved
	}
	return r, nil
}

// Approve records role's sign-off and advances the record to approved
// once every required role has signed.
func Approve(r Record, role ApprovalRole, approverID string, clock func() time.Time) (Record, error) {
	if r.Status != StatusProposed {
		return r, fmt.Errorf("patch: %s is not awaiting approval (status=%s)", r.PatchID, r.Status)
	}
	if !roleRequired(r.Severity, role) {
		return r, fmt.Errorf("patch: role %q is not part of the approval policy for severity %q", role, r.Severity)
	}
	r.Approvals = append(r.Approvals, Approval{Role: role, ApproverID: approverID, ApprovedAt: clock()})
	if satisfied(r) {
		r.Status = StatusApproved
	}
	return r, nil
}

func roleRequired(severity claims.StatusLight, role ApprovalRole) bool {
	for _, req := range RequiredApprovals(severity) {
		if req == role {
			return true
		}
	}
	return false
}

func satisfied(r Record) bool {
	have := make(map[ApprovalRole]bool, len(r.Approvals))
	for _, a := range r.Approvals {
		have[a.Role] = true
	}
	for _, req := range RequiredApprovals(r.Severity) {
		if !have[req] {
			return false
		}
	}
	return true
}

// Apply marks an approved record applied. It does not itself mutate any
// sealed episode; the caller is responsible for emitting the new sealed
// episode (DLR/RS/DS/MG-diff) this patch represents and wiring its
// Memory Graph PATCH node with a RESOLVED_BY edge to the drift signal.
func Apply(r Record) (Record, error) {
	if r.Status != StatusApproved {
		return r, fmt.Errorf("patch: %s is not approved (status=%s)", r.PatchID, r.Status)
	}
	r.Status = StatusApplied
	return r, nil
}

// Fail marks a patch as failed and returns the failureRef a new drift
// signal should be emitted against, per §4.12's "if the patch itself
// fails, a new DS emits against the patch" rule.
func Fail(r Record, reason string) Record {
	r.Status = StatusFailed
	r.FailureRef = reason
	return r
}
