package triage

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConfidenceBand buckets a candidate probability into a coarse confidence tier.
type ConfidenceBand string

const (
	ConfidenceLow    ConfidenceBand = "low"
	ConfidenceMedium ConfidenceBand = "medium"
	ConfidenceHigh   ConfidenceBand = "high"
)

// BandFor derives the confidence band from a probability in [0,100].
func BandFor(probability float64) ConfidenceBand {
	switch {
	case probability >= 70:
		return ConfidenceHigh
	case probability >= 40:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// UrgencyLevel is the discrete severity tier. Lower is more severe:
// 1 = emergency, 2 = doctor consult, 3 = monitor, 4 = self-care.
type UrgencyLevel int

const (
	LevelEmergency UrgencyLevel = 1
	LevelDoctor    UrgencyLevel = 2
	LevelMonitor   UrgencyLevel = 3
	LevelSelfCare  UrgencyLevel = 4
)

// Valid reports whether the level is one of the four defined tiers.
func (l UrgencyLevel) Valid() bool {
	return l >= LevelEmergency && l <= LevelSelfCare
}

// EscalationPath names the recommended caregiver route for an assessment.
type EscalationPath string

const (
	PathEmergency     EscalationPath = "emergency"
	PathDoctorConsult EscalationPath = "doctor-consult"
	PathMonitor       EscalationPath = "monitor"
	PathSelfCare      EscalationPath = "self-care"
)

// DistressDecision is the discrete outcome of audio distress classification.
type DistressDecision string

const (
	DistressNone      DistressDecision = "none"
	DistressPossible  DistressDecision = "possible"
	DistressConfirmed DistressDecision = "confirmed"
)

// SymptomReport is the validated input to the scorer. Immutable once created.
type SymptomReport struct {
	PatientID  string    `json:"patient_id"`
	SessionID  string    `json:"session_id"`
	Symptoms   []string  `json:"symptoms"`
	Note       string    `json:"note"`
	Age        int       `json:"age"`
	Gender     string    `json:"gender"`
	ReportedAt time.Time `json:"reported_at"`
}

// ConditionCandidate is one scored condition match.
type ConditionCandidate struct {
	Name        string         `json:"name"`
	Probability float64        `json:"probability"`
	Confidence  ConfidenceBand `json:"confidence"`
	Symptoms    []string       `json:"symptoms"`
	Reasons     []string       `json:"reasons"`
}

// Recommendations is the advisory bundle attached to an assessment.
type Recommendations struct {
	Immediate   []string `json:"immediate"`
	Medications []string `json:"medications"`
	WhenToSeek  []string `json:"when_to_seek"`
}

// TriageAssessment is the immutable result of one triage cycle.
type TriageAssessment struct {
	ID               uuid.UUID          `json:"id"`
	PatientID        string             `json:"patient_id"`
	SessionID        string             `json:"session_id"`
	Report           *SymptomReport     `json:"report,omitempty"`
	Candidates       []ConditionCandidate `json:"candidates"`
	Level            UrgencyLevel       `json:"level"`
	Path             EscalationPath     `json:"path"`
	Recommendations  Recommendations    `json:"recommendations"`
	DistressDecision DistressDecision   `json:"distress_decision"`
	CreatedAt        time.Time          `json:"created_at"`
}

// TopCandidate returns the highest-probability candidate, or nil.
func (a *TriageAssessment) TopCandidate() *ConditionCandidate {
	if a == nil || len(a.Candidates) == 0 {
		return nil
	}
	return &a.Candidates[0]
}

// symptomCode splits an optionally-quantified symptom ("fever:102") into its
// bare code and magnitude. A missing or malformed magnitude yields zero.
func symptomCode(raw string) (code string, magnitude float64) {
	code = strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexByte(code, ':'); idx >= 0 {
		if v, err := strconv.ParseFloat(code[idx+1:], 64); err == nil {
			magnitude = v
		}
		code = code[:idx]
	}
	return code, magnitude
}
