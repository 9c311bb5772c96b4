package patch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore persists patch records for durable cross-process lookup,
// mirroring the teacher's pkg/budget.PostgresStorage: a thin sql.DB
// wrapper with upsert-on-conflict semantics, approvals stored as a JSON
// column rather than a join table since they're always read/written
// whole.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get retrieves a patch record by ID. A missing record returns (nil, nil).
func (s *PostgresStore) Get(ctx context.Context, patchID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT patch_id, drift_ref, rollback_plan, expected_ci_impact, severity, status, approvals, created_at, failure_ref FROM patches WHERE patch_id = $1",
		patchID)

	var r Record
	var approvalsJSON []byte
	var failureRef sql.NullString
	err := row.Scan(&r.PatchID, &r.DriftRef, &r.RollbackPlan, &r.ExpectedCIImpact, &r.Severity, &r.Status, &approvalsJSON, &r.CreatedAt, &failureRef)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patch: get %s: %w", patchID, err)
	}
	if len(approvalsJSON) > 0 {
		if err := json.Unmarshal(approvalsJSON, &r.Approvals); err != nil {
			return nil, fmt.Errorf("patch: decode approvals for %s: %w", patchID, err)
		}
	}
	r.FailureRef = failureRef.String
	return &r, nil
}

// Put upserts r.
func (s *PostgresStore) Put(ctx context.Context, r Record) error {
	approvalsJSON, err := json.Marshal(r.Approvals)
	if err != nil {
		return fmt.Errorf("patch: encode approvals for %s: %w", r.PatchID, err)
	}

	query := `
		INSERT INTO patches (patch_id, drift_ref, rollback_plan, expected_ci_impact, severity, status, approvals, created_at, failure_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (patch_id) DO UPDATE SET
			status = EXCLUDED.status,
			approvals = EXCLUDED.approvals,
			failure_ref = EXCLUDED.failure_ref
	`
	_, err = s.db.ExecContext(ctx, query,
		r.PatchID, r.DriftRef, r.RollbackPlan, r.ExpectedCIImpact, r.Severity, r.Status, approvalsJSON, r.CreatedAt, nullIfEmpty(r.FailureRef))
	if err != nil {
		return fmt.Errorf("patch: put %s: %w", r.PatchID, err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
