package patch

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/claims"
)

func TestPostgresStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	cols := []string{"patch_id", "drift_ref", "rollback_plan", "expected_ci_impact", "severity", "status", "approvals", "created_at", "failure_ref"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT patch_id")).
		WithArgs("PATCH-missing").
		WillReturnRows(sqlmock.NewRows(cols))

	r, err := store.Get(context.Background(), "PATCH-missing")
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestPostgresStorePut(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	r := Record{
		PatchID:          "PATCH-abc123",
		DriftRef:         "DRIFT-1",
		RollbackPlan:     "revert ttl_change",
		ExpectedCIImpact: -0.5,
		Severity:         claims.StatusYellow,
		Status:           StatusApproved,
		CreatedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO patches")).
		WithArgs(r.PatchID, r.DriftRef, r.RollbackPlan, r.ExpectedCIImpact, r.Severity, r.Status, sqlmock.AnyArg(), r.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Put(context.Background(), r)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
