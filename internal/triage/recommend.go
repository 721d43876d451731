package triage

import "fmt"

// Recommender composes the advisory bundle for an assessment.
// Implementations must be deterministic with no network or storage access.
type Recommender interface {
	Generate(level UrgencyLevel, top *ConditionCandidate) (Recommendations, error)
}

// StaticRecommender is the default Recommender: a lookup over per-condition
// advice tables plus urgency-level additions. Numeric thresholds that appear
// in advice copy are configuration, not constants.
type StaticRecommender struct {
	feverThresholdF int
	worsenAfterDays int
	byCondition     map[string]Recommendations
}

// NewStaticRecommender creates a recommender. feverThresholdF and
// worsenAfterDays drive the escalation-warning copy; zero values take the
// shipped defaults (102°F, 3 days).
func NewStaticRecommender(feverThresholdF, worsenAfterDays int) *StaticRecommender {
	if feverThresholdF <= 0 {
		feverThresholdF = 102
	}
	if worsenAfterDays <= 0 {
		worsenAfterDays = 3
	}
	r := &StaticRecommender{
		feverThresholdF: feverThresholdF,
		worsenAfterDays: worsenAfterDays,
	}
	feverWarning := fmt.Sprintf("If fever exceeds %d°F", feverThresholdF)
	worsenWarning := fmt.Sprintf("If symptoms worsen after %d days", worsenAfterDays)

	r.byCondition = map[string]Recommendations{
		"Flu": {
			Immediate: []string{
				"Rest and stay hydrated",
				"Monitor body temperature regularly",
				"Stay home to avoid spreading infection",
			},
			Medications: []string{
				"Pain relievers like Paracetamol if needed",
				"OTC decongestants (consult pharmacist)",
			},
			WhenToSeek: []string{
				worsenWarning,
				feverWarning,
				"If breathing becomes difficult",
			},
		},
		"Common Cold": {
			Immediate: []string{
				"Rest and stay hydrated",
				"Use steam inhalation for relief",
				"Avoid cold beverages and smoking",
			},
			Medications: []string{
				"OTC cough suppressants (consult pharmacist)",
				"Throat lozenges for comfort",
			},
			WhenToSeek: []string{
				worsenWarning,
				feverWarning,
			},
		},
		"Seasonal Allergies": {
			Immediate: []string{
				"Avoid known allergen exposure",
				"Keep windows closed during high pollen counts",
			},
			Medications: []string{
				"OTC antihistamines (consult pharmacist)",
				"Saline nasal rinse",
			},
			WhenToSeek: []string{
				"If wheezing or shortness of breath develops",
				worsenWarning,
			},
		},
		"Acute Bronchitis": {
			Immediate: []string{
				"Rest and stay hydrated",
				"Use steam inhalation for relief",
				"Avoid cold beverages and smoking",
			},
			Medications: []string{
				"OTC cough suppressants (consult pharmacist)",
				"Pain relievers like Paracetamol if needed",
			},
			WhenToSeek: []string{
				worsenWarning,
				feverWarning,
				"If breathing becomes difficult",
				"If chest pain intensifies",
			},
		},
		"Pneumonia": {
			Immediate: []string{
				"Arrange clinical evaluation promptly",
				"Rest and monitor breathing",
			},
			Medications: []string{
				"Do not self-medicate with antibiotics",
			},
			WhenToSeek: []string{
				"Seek care now; pneumonia requires clinical confirmation",
				feverWarning,
				"If breathing becomes difficult",
			},
		},
		"Heart Attack": {
			Immediate: []string{
				"Stop all activity and sit down",
				"Loosen tight clothing",
			},
			Medications: []string{
				"Aspirin only if advised by emergency responder",
			},
			WhenToSeek: []string{
				"Call emergency services immediately",
			},
		},
		"Gastroenteritis": {
			Immediate: []string{
				"Sip fluids frequently to avoid dehydration",
				"Eat bland food once tolerated",
			},
			Medications: []string{
				"Oral rehydration solution",
			},
			WhenToSeek: []string{
				"If unable to keep fluids down for 24 hours",
				"If blood appears in stool or vomit",
				feverWarning,
			},
		},
		"Migraine": {
			Immediate: []string{
				"Rest in a quiet, dark room",
				"Apply a cold compress to the forehead",
			},
			Medications: []string{
				"Pain relievers like Paracetamol if needed",
			},
			WhenToSeek: []string{
				"If this is the worst headache of your life",
				"If headache follows a head injury",
			},
		},
	}
	return r
}

// Generate returns the advisory bundle for the urgency level and top
// candidate. Fails with ErrInvalidInput on an undefined level or nil/blank
// candidate; an unknown condition degrades to generic advice, never an error.
func (r *StaticRecommender) Generate(level UrgencyLevel, top *ConditionCandidate) (Recommendations, error) {
	if !level.Valid() {
		return Recommendations{}, fmt.Errorf("%w: urgency level %d", ErrInvalidInput, level)
	}
	if top == nil || top.Name == "" {
		return Recommendations{}, fmt.Errorf("%w: missing top candidate", ErrInvalidInput)
	}

	base, ok := r.byCondition[top.Name]
	if !ok {
		base = Recommendations{
			Immediate:  []string{"Rest and stay hydrated", "Monitor symptoms closely"},
			WhenToSeek: []string{fmt.Sprintf("If symptoms worsen after %d days", r.worsenAfterDays)},
		}
	}

	out := Recommendations{
		Immediate:   append([]string(nil), base.Immediate...),
		Medications: append([]string(nil), base.Medications...),
		WhenToSeek:  append([]string(nil), base.WhenToSeek...),
	}

	switch level {
	case LevelEmergency:
		out.Immediate = append([]string{"Call emergency services or go to the nearest emergency department now"}, out.Immediate...)
	case LevelDoctor:
		out.WhenToSeek = append(out.WhenToSeek, "Book a doctor consultation within 24 hours")
	case LevelMonitor:
		out.WhenToSeek = append(out.WhenToSeek, "Re-run a symptom check if anything changes")
	}

	return out, nil
}

var _ Recommender = (*StaticRecommender)(nil)
