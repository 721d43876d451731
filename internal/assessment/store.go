package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caresignal/triage-platform/internal/triage"
)

// ErrAssessmentNotFound is returned when an assessment ID has no record.
var ErrAssessmentNotFound = errors.New("assessment: not found")

// Store persists completed assessments for history and audit.
type Store interface {
	Save(ctx context.Context, a *triage.TriageAssessment) error
	Get(ctx context.Context, id uuid.UUID) (*triage.TriageAssessment, error)
	History(ctx context.Context, patientID string, limit int) ([]*triage.TriageAssessment, error)
}

// PostgresStore persists assessments to PostgreSQL. Candidates, report and
// recommendations land in JSONB columns; the queryable dimensions get their
// own columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an assessment store. Returns nil for a nil db so
// callers can treat persistence as optional.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		return nil
	}
	return &PostgresStore{db: db}
}

// Save upserts one assessment. Re-saving an existing ID updates the urgency
// fields, which happens when a distress signal reclassifies an assessment.
func (s *PostgresStore) Save(ctx context.Context, a *triage.TriageAssessment) error {
	if s == nil || s.db == nil {
		return nil
	}
	if a == nil {
		return fmt.Errorf("assessment: cannot save nil assessment")
	}

	candidates, err := json.Marshal(a.Candidates)
	if err != nil {
		return fmt.Errorf("assessment: failed to encode candidates: %w", err)
	}
	recommendations, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("assessment: failed to encode recommendations: %w", err)
	}
	var report []byte
	if a.Report != nil {
		report, err = json.Marshal(a.Report)
		if err != nil {
			return fmt.Errorf("assessment: failed to encode report: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (
			id, patient_id, session_id, level, path, distress_decision,
			candidates, recommendations, report, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			level = EXCLUDED.level,
			path = EXCLUDED.path,
			distress_decision = EXCLUDED.distress_decision,
			candidates = EXCLUDED.candidates,
			recommendations = EXCLUDED.recommendations
	`, a.ID, a.PatientID, a.SessionID, int(a.Level), string(a.Path), string(a.DistressDecision),
		candidates, recommendations, report, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("assessment: failed to save assessment: %w", err)
	}
	return nil
}

// Get loads one assessment by ID.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*triage.TriageAssessment, error) {
	if s == nil || s.db == nil {
		return nil, ErrAssessmentNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, patient_id, session_id, level, path, distress_decision,
		       candidates, recommendations, report, created_at
		FROM assessments
		WHERE id = $1
	`, id)
	a, err := scanAssessment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("assessment: failed to load assessment: %w", err)
	}
	return a, nil
}

// History returns the patient's most recent assessments, newest first.
func (s *PostgresStore) History(ctx context.Context, patientID string, limit int) ([]*triage.TriageAssessment, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, session_id, level, path, distress_decision,
		       candidates, recommendations, report, created_at
		FROM assessments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("assessment: failed to query history: %w", err)
	}
	defer rows.Close()

	var out []*triage.TriageAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("assessment: failed to scan history row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assessment: history iteration failed: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*triage.TriageAssessment, error) {
	var (
		a               triage.TriageAssessment
		level           int
		path            string
		distress        string
		candidates      []byte
		recommendations []byte
		report          []byte
		createdAt       time.Time
	)
	if err := row.Scan(&a.ID, &a.PatientID, &a.SessionID, &level, &path, &distress,
		&candidates, &recommendations, &report, &createdAt); err != nil {
		return nil, err
	}
	a.Level = triage.UrgencyLevel(level)
	a.Path = triage.EscalationPath(path)
	a.DistressDecision = triage.DistressDecision(distress)
	a.CreatedAt = createdAt

	if len(candidates) > 0 {
		if err := json.Unmarshal(candidates, &a.Candidates); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
	}
	if len(recommendations) > 0 {
		if err := json.Unmarshal(recommendations, &a.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
	}
	if len(report) > 0 {
		var r triage.SymptomReport
		if err := json.Unmarshal(report, &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		a.Report = &r
	}
	return &a, nil
}

var _ Store = (*PostgresStore)(nil)
