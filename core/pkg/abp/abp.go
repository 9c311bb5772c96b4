// Package abp implements C5: the Authority Boundary Primitive builder and
// verifier. An ABP is the signed, hashed, content-addressed boundary a node
// operates within — allowed/denied objectives and tools, data permissions,
// approval and escalation paths, and an optional delegation review gate.
//
// Grounded on the teacher's pkg/boundary.PerimeterPolicy (allow/deny-list
// constraint shape, generalized here from network/tool/data/temporal
// constraints to the spec's objectives/tools/data/approvals/escalation
// fields) and pkg/pdp.ComputeDecisionHash's fail-closed, hash-blanked,
// canonical-JSON decision hashing pattern, adapted from a one-shot policy
// decision hash into the ABP's own content-addressed abp_id/hash scheme.
package abp

import (
	"sort"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/authority"
	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// AuthorityRef binds an ABP to the authority ledger entry that grants it.
type AuthorityRef struct {
	AuthorityID string `json:"authority_id"`
	EntryHash   string `json:"entry_hash"`
}

// Objectives is the allowed/denied objective-ID lists.
type Objectives struct {
	Allowed []string `json:"allowed,omitempty"`
	Denied  []string `json:"denied,omitempty"`
}

// Tools is the allow/deny tool-name lists.
type Tools struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// Data lists the data permissions the ABP grants.
type Data struct {
	Permissions []string `json:"permissions,omitempty"`
}

// Approvals lists the approval roles required before acting under the ABP.
type Approvals struct {
	Required []string `json:"required,omitempty"`
}

// Escalation lists escalation path identifiers.
type Escalation struct {
	Paths []string `json:"paths,omitempty"`
}

// Runtime lists the validator IDs that must check this ABP's envelopes.
type Runtime struct {
	Validators []string `json:"validators,omitempty"`
}

// Proof lists the proof artifact kinds required for compliant action.
type Proof struct {
	Required []string `json:"required,omitempty"`
}

// Composition records the parent/children relationship produced by
// ComposeABPs.
type Composition struct {
	ParentABPID   string   `json:"parent_abp_id,omitempty"`
	ParentABPHash string   `json:"parent_abp_hash,omitempty"`
	Children      []string `json:"children,omitempty"`
}

// DelegationTrigger fires a mandatory review at a given severity.
type DelegationTrigger struct {
	ID       string `json:"id"`
	Severity string `json:"severity"` // warn | critical
}

// ReviewPolicy names who must approve a triggered delegation review.
type ReviewPolicy struct {
	ApproverRole string `json:"approver_role"`
	Output       string `json:"output"`
	TimeoutMS    int64  `json:"timeout_ms"`
}

// DelegationReview is optional; its absence always passes verification.
type DelegationReview struct {
	Triggers []DelegationTrigger `json:"triggers"`
	Policy   ReviewPolicy        `json:"policy"`
}

// ABP is the Authority Boundary Primitive of spec §3.
type ABP struct {
	ABPVersion       string            `json:"abp_version"`
	ABPID            string            `json:"abp_id"`
	Scope            string            `json:"scope"`
	AuthorityRef     AuthorityRef      `json:"authority_ref"`
	Objectives       Objectives        `json:"objectives"`
	Tools            Tools             `json:"tools"`
	Data             Data              `json:"data"`
	Approvals        Approvals         `json:"approvals"`
	Escalation       Escalation        `json:"escalation"`
	Runtime          Runtime           `json:"runtime"`
	Proof            Proof             `json:"proof"`
	Composition      Composition       `json:"composition"`
	DelegationReview *DelegationReview `json:"delegation_review,omitempty"`
	EffectiveAt      time.Time         `json:"effective_at"`
	ExpiresAt        *time.Time        `json:"expires_at"`
	CreatedAt        time.Time         `json:"created_at"`
	Hash             string            `json:"hash"`
}

// idInput is the minimal triple abp_id is derived from (§3: "ABP-" +
// sha256_canonical({scope, authority_ref, created_at})[:8]).
type idInput struct {
	Scope        string       `json:"scope"`
	AuthorityRef AuthorityRef `json:"authority_ref"`
	CreatedAt    time.Time    `json:"created_at"`
}

func computeABPID(scope string, ref AuthorityRef, createdAt time.Time) (string, error) {
	h, err := canonicalize.Hash(idInput{Scope: scope, AuthorityRef: ref, CreatedAt: createdAt})
	if err != nil {
		return "", err
	}
	digest := h[len(canonicalize.HashPrefix):]
	if len(digest) < 8 {
		return "", meshrr.New(meshrr.KindInputInvalid, "abp: digest shorter than 8 chars")
	}
	return "ABP-" + digest[:8], nil
}

// BuildConfig carries every field build_abp needs beyond scope/authority_ref.
type BuildConfig struct {
	ABPVersion       string
	Objectives       Objectives
	Tools            Tools
	Data             Data
	Approvals        Approvals
	Escalation       Escalation
	Runtime          Runtime
	Proof            Proof
	DelegationReview *DelegationReview
	EffectiveAt      time.Time
	ExpiresAt        *time.Time
}

// Build implements build_abp(scope, authority_ref, config, clock).
func Build(scope string, ref AuthorityRef, cfg BuildConfig, clock func() time.Time) (*ABP, error) {
	createdAt := clock()

	a := &ABP{
		ABPVersion:       cfg.ABPVersion,
		Scope:            scope,
		AuthorityRef:     ref,
		Objectives:       cfg.Objectives,
		Tools:            cfg.Tools,
		Data:             cfg.Data,
		Approvals:        cfg.Approvals,
		Escalation:       cfg.Escalation,
		Runtime:          cfg.Runtime,
		Proof:            cfg.Proof,
		DelegationReview: cfg.DelegationReview,
		EffectiveAt:      cfg.EffectiveAt,
		ExpiresAt:        cfg.ExpiresAt,
		CreatedAt:        createdAt,
	}

	id, err := computeABPID(scope, ref, createdAt)
	if err != nil {
		return nil, err
	}
	a.ABPID = id

	if err := checkContradictions(a); err != nil {
		return nil, err
	}

	hash, err := canonicalize.HashWithBlankedField(a, "hash")
	if err != nil {
		return nil, meshrr.Wrap(meshrr.KindInputInvalid, err, "abp: compute hash")
	}
	a.Hash = hash

	return a, nil
}

// checkContradictions fails with ABP_CONTRADICTION if any objective ID
// appears in both allowed and denied, or any tool name in both allow and
// deny.
func checkContradictions(a *ABP) error {
	if id, ok := overlap(a.Objectives.Allowed, a.Objectives.Denied); ok {
		return meshrr.New(meshrr.KindABPContradiction, "objective "+id+" is both allowed and denied")
	}
	if name, ok := overlap(a.Tools.Allow, a.Tools.Deny); ok {
		return meshrr.New(meshrr.KindABPContradiction, "tool "+name+" is both allowed and denied")
	}
	return nil
}

func overlap(a, b []string) (string, bool) {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return v, true
		}
	}
	return "", false
}

// Compose implements compose_abps: merge children into parent, concatenating
// list fields, unioning proof.required, deduplicating delegation_review
// triggers by id (first wins), and taking the tightest review_policy
// timeout_ms. The parent's hash is recomputed after injecting children;
// abp_id is preserved (composition changes content, not identity).
func Compose(parent *ABP, children []*ABP, clock func() time.Time) (*ABP, error) {
	merged := *parent
	merged.CreatedAt = clock()

	childIDs := make([]string, 0, len(children))
	for _, c := range children {
		merged.Objectives.Allowed = append(merged.Objectives.Allowed, c.Objectives.Allowed...)
		merged.Objectives.Denied = append(merged.Objectives.Denied, c.Objectives.Denied...)
		merged.Tools.Allow = append(merged.Tools.Allow, c.Tools.Allow...)
		merged.Tools.Deny = append(merged.Tools.Deny, c.Tools.Deny...)
		merged.Data.Permissions = append(merged.Data.Permissions, c.Data.Permissions...)
		merged.Approvals.Required = append(merged.Approvals.Required, c.Approvals.Required...)
		merged.Escalation.Paths = append(merged.Escalation.Paths, c.Escalation.Paths...)
		merged.Runtime.Validators = append(merged.Runtime.Validators, c.Runtime.Validators...)
		merged.Proof.Required = append(merged.Proof.Required, c.Proof.Required...)
		merged.DelegationReview = mergeDelegationReview(merged.DelegationReview, c.DelegationReview)
		childIDs = append(childIDs, c.ABPID)
	}

	merged.Proof.Required = dedupe(merged.Proof.Required)
	merged.Composition = Composition{
		ParentABPID:   parent.ABPID,
		ParentABPHash: parent.Hash,
		Children:      childIDs,
	}

	if err := checkContradictions(&merged); err != nil {
		return nil, err
	}

	hash, err := canonicalize.HashWithBlankedField(&merged, "hash")
	if err != nil {
		return nil, meshrr.Wrap(meshrr.KindInputInvalid, err, "abp: recompute composed hash")
	}
	merged.Hash = hash
	return &merged, nil
}

func mergeDelegationReview(a, b *DelegationReview) *DelegationReview {
	if b == nil {
		return a
	}
	if a == nil {
		cp := *b
		return &cp
	}
	out := &DelegationReview{Policy: a.Policy}
	if b.Policy.TimeoutMS > 0 && (out.Policy.TimeoutMS == 0 || b.Policy.TimeoutMS < out.Policy.TimeoutMS) {
		out.Policy.TimeoutMS = b.Policy.TimeoutMS
	}

	seen := make(map[string]struct{})
	for _, t := range a.Triggers {
		if _, ok := seen[t.ID]; !ok {
			seen[t.ID] = struct{}{}
			out.Triggers = append(out.Triggers, t)
		}
	}
	for _, t := range b.Triggers {
		if _, ok := seen[t.ID]; !ok {
			seen[t.ID] = struct{}{}
			out.Triggers = append(out.Triggers, t)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// AuthorityResolver is the slice of authority.Ledger that verification
// needs, kept as an interface so abp does not require a concrete ledger.
type AuthorityResolver interface {
	Entries() []authority.Entry
}
