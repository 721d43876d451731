package triage

// Policy holds the tunable thresholds behind urgency classification.
// Operators adjust sensitivity here, never in code.
type Policy struct {
	EmergencyProbability float64
	DoctorProbability    float64
	MonitorProbability   float64
	HighSeverity         map[string]bool
}

// DefaultPolicy returns the shipped classification thresholds.
func DefaultPolicy() Policy {
	return Policy{
		EmergencyProbability: 85,
		DoctorProbability:    60,
		MonitorProbability:   35,
		HighSeverity: map[string]bool{
			"Pneumonia":    true,
			"Heart Attack": true,
			"Stroke":       true,
			"Meningitis":   true,
		},
	}
}

// NewPolicy builds a Policy from configured values.
func NewPolicy(emergency, doctor, monitor float64, highSeverity []string) Policy {
	p := DefaultPolicy()
	if emergency > 0 {
		p.EmergencyProbability = emergency
	}
	if doctor > 0 {
		p.DoctorProbability = doctor
	}
	if monitor > 0 {
		p.MonitorProbability = monitor
	}
	if len(highSeverity) > 0 {
		p.HighSeverity = make(map[string]bool, len(highSeverity))
		for _, name := range highSeverity {
			p.HighSeverity[name] = true
		}
	}
	return p
}

// Classifier maps condition candidates plus a distress decision to an urgency
// level and escalation path. Pure; safe for concurrent use.
type Classifier struct {
	policy Policy
}

// NewClassifier creates a classifier with the given policy.
func NewClassifier(policy Policy) *Classifier {
	return &Classifier{policy: policy}
}

// Classify evaluates the policy table top-down; first match wins.
// A confirmed distress decision overrides every candidate score.
func (c *Classifier) Classify(candidates []ConditionCandidate, distress DistressDecision) (UrgencyLevel, EscalationPath) {
	if distress == DistressConfirmed {
		return LevelEmergency, PathEmergency
	}

	if len(candidates) == 0 {
		return LevelSelfCare, PathSelfCare
	}
	top := candidates[0]

	switch {
	case top.Probability >= c.policy.EmergencyProbability &&
		top.Confidence == ConfidenceHigh &&
		c.policy.HighSeverity[top.Name]:
		return LevelEmergency, PathEmergency
	case top.Probability >= c.policy.DoctorProbability:
		return LevelDoctor, PathDoctorConsult
	case top.Probability >= c.policy.MonitorProbability:
		return LevelMonitor, PathMonitor
	default:
		return LevelSelfCare, PathSelfCare
	}
}
