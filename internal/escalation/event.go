package escalation

import (
	"time"

	"github.com/google/uuid"

	"github.com/caresignal/triage-platform/internal/triage"
)

// Role is the closed set of caregiver roles an escalation can target.
type Role string

const (
	RoleDoctor    Role = "doctor"
	RoleStaff     Role = "staff"
	RoleEmergency Role = "emergency-service"
)

// KnownRole reports whether the role is part of the closed set.
func KnownRole(r Role) bool {
	switch r {
	case RoleDoctor, RoleStaff, RoleEmergency:
		return true
	}
	return false
}

// Recipient is a caregiver delivery target, supplied by the identity
// collaborator and read-only to this package.
type Recipient struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	Channel string `json:"channel"` // email, sms, pager...
	Address string `json:"address"`
}

// EventState is the escalation state machine state.
type EventState string

const (
	StateCreated      EventState = "created"
	StateDispatching  EventState = "dispatching"
	StateAcknowledged EventState = "acknowledged"
	StateTimedOut     EventState = "timed_out"
	StateEscalating   EventState = "escalating"
	StateExhausted    EventState = "exhausted"
)

// Terminal reports whether the state is sticky.
func (s EventState) Terminal() bool {
	return s == StateAcknowledged || s == StateExhausted
}

// Event is a snapshot of one escalation's state. Values returned by the
// dispatcher are copies; the live state is owned exclusively by the
// dispatcher for the event's lifetime.
type Event struct {
	ID             uuid.UUID             `json:"id"`
	AssessmentID   uuid.UUID             `json:"assessment_id"`
	PatientID      string                `json:"patient_id"`
	Level          triage.UrgencyLevel   `json:"level"`
	Path           triage.EscalationPath `json:"path"`
	State          EventState            `json:"state"`
	TierIndex      int                   `json:"tier_index"`
	Attempts       int                   `json:"attempts"`
	Recipients     []Recipient           `json:"recipients"`
	AcknowledgedBy string                `json:"acknowledged_by,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	LastAttemptAt  time.Time             `json:"last_attempt_at,omitzero"`
}

// Payload is what a recipient receives for an escalated assessment.
// Channel-agnostic; the delivery collaborator renders it.
type Payload struct {
	EventID      uuid.UUID             `json:"event_id"`
	AssessmentID uuid.UUID             `json:"assessment_id"`
	PatientID    string                `json:"patient_id"`
	Level        triage.UrgencyLevel   `json:"level"`
	Path         triage.EscalationPath `json:"path"`
	TopCondition string                `json:"top_condition,omitempty"`
	Summary      string                `json:"summary"`
	CreatedAt    time.Time             `json:"created_at"`
}
