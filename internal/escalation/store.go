package escalation

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresAuditStore writes terminal escalation outcomes to PostgreSQL.
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore creates the audit store. Returns nil for a nil db so
// audit persistence stays optional.
func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	if db == nil {
		return nil
	}
	return &PostgresAuditStore{db: db}
}

// RecordResolution inserts one terminal event outcome.
func (s *PostgresAuditStore) RecordResolution(ctx context.Context, event Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_events (
			id, assessment_id, patient_id, level, path, state,
			tier_index, attempts, acknowledged_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			tier_index = EXCLUDED.tier_index,
			attempts = EXCLUDED.attempts,
			acknowledged_by = EXCLUDED.acknowledged_by,
			resolved_at = now()
	`, event.ID, event.AssessmentID, event.PatientID, int(event.Level), string(event.Path),
		string(event.State), event.TierIndex, event.Attempts, event.AcknowledgedBy, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("escalation: failed to record resolution: %w", err)
	}
	return nil
}

var _ AuditStore = (*PostgresAuditStore)(nil)
