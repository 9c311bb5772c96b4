package patch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestProposeGreenAutoApproves(t *testing.T) {
	r, err := Propose(ProposeInput{DriftRef: "DRIFT-1", Severity: claims.StatusGreen}, fixedClock())
	require.NoError(t, err)
	require.Equal(t, StatusApproved, r.Status)
}

func TestProposeYellowAwaitsOwner(t *testing.T) {
	r, err := Propose(ProposeInput{DriftRef: "DRIFT-2", Severity: claims.StatusYellow}, fixedClock())
	require.NoError(t, err)
	require.Equal(t, StatusProposed, r.Status)

	r, err = Approve(r, RoleOwner, "owner-1", fixedClock())
	require.NoError(t, err)
	require.Equal(t, StatusApproved, r.Status)
}

func TestProposeRedRequiresReviewerAndGovernanceLead(t *testing.T) {
	r, err := Propose(ProposeInput{DriftRef: "DRIFT-3", Severity: claims.StatusRed}, fixedClock())
	require.NoError(t, err)
	require.Equal(t, StatusProposed, r.Status)

	r, err = Approve(r, RoleReviewer, "reviewer-1", fixedClock())
	require.NoError(t, err)
	require.Equal(t, StatusProposed, r.Status, "still missing governance lead")

	r, err = Approve(r, RoleGovernanceLead, "lead-1", fixedClock())
	require.NoError(t, err)
	require.Equal(t, StatusApproved, r.Status)
}

func TestApproveRejectsUnrequiredRole(t *testing.T) {
	r, err := Propose(ProposeInput{DriftRef: "DRIFT-4", Severity: claims.StatusYellow}, fixedClock())
	require.NoError(t, err)

	_, err = Approve(r, RoleGovernanceLead, "lead-1", fixedClock())
	require.Error(t, err)
}

func TestApplyRequiresApprovedStatus(t *testing.T) {
	r, err := Propose(ProposeInput{DriftRef: "DRIFT-5", Severity: claims.StatusRed}, fixedClock())
	require.NoError(t, err)

	_, err = Apply(r)
	require.Error(t, err)
}

func TestApplyThenFailEmitsFailureRef(t *testing.T) {
	r, err := Propose(ProposeInput{DriftRef: "DRIFT-6", Severity: claims.StatusGreen}, fixedClock())
	require.NoError(t, err)

	r, err = Apply(r)
	require.NoError(t, err)
	require.Equal(t, StatusApplied, r.Status)

	failed := Fail(r, "rollback triggered: downstream consumer rejected patch")
	require.Equal(t, StatusFailed, failed.Status)
	require.NotEmpty(t, failed.FailureRef)
}
