package triage

import (
	"fmt"
	"math"
	"sort"
)

// Scorer produces ranked condition candidates from a symptom report.
// Implementations must be pure: identical input yields identical output, and
// the returned sequence is sorted non-increasing by probability with ties
// broken by condition name. Safe for concurrent use.
type Scorer interface {
	Score(report *SymptomReport) ([]ConditionCandidate, error)
}

// conditionRule is one entry in the rule table: a condition and the weighted
// symptom pattern that suggests it. Weights per condition sum to 1.
type conditionRule struct {
	name         string
	symptoms     map[string]float64
	elderlyBoost float64
}

// RuleScorer is the default Scorer: a deterministic weighted-match over a
// fixed rule table. The statistical model behind scoring is pluggable; this
// implementation exists so the pipeline is fully exercisable without one.
type RuleScorer struct {
	rules            []conditionRule
	highFeverCutoffF float64
}

// NewRuleScorer creates a scorer over the built-in condition table.
// highFeverCutoffF is the Fahrenheit reading at which a quantified "fever"
// symptom also counts as high fever.
func NewRuleScorer(highFeverCutoffF float64) *RuleScorer {
	if highFeverCutoffF <= 0 {
		highFeverCutoffF = 102
	}
	return &RuleScorer{
		highFeverCutoffF: highFeverCutoffF,
		rules: []conditionRule{
			{
				name: "Flu",
				symptoms: map[string]float64{
					"fever": 0.35, "cough": 0.25, "fatigue": 0.20, "body_ache": 0.20,
				},
			},
			{
				name: "Common Cold",
				symptoms: map[string]float64{
					"cough": 0.30, "sore_throat": 0.25, "runny_nose": 0.25, "sneezing": 0.20,
				},
			},
			{
				name: "Seasonal Allergies",
				symptoms: map[string]float64{
					"sneezing": 0.30, "runny_nose": 0.30, "itchy_eyes": 0.25, "cough": 0.15,
				},
			},
			{
				name: "Acute Bronchitis",
				symptoms: map[string]float64{
					"cough": 0.40, "chest_discomfort": 0.30, "fatigue": 0.30,
				},
			},
			{
				name: "Pneumonia",
				symptoms: map[string]float64{
					"high_fever": 0.30, "breathing_difficulty": 0.30, "cough": 0.25, "chest_pain": 0.15,
				},
				elderlyBoost: 10,
			},
			{
				name: "Heart Attack",
				symptoms: map[string]float64{
					"chest_pain": 0.40, "breathing_difficulty": 0.25, "arm_pain": 0.20, "sweating": 0.15,
				},
				elderlyBoost: 10,
			},
			{
				name: "Gastroenteritis",
				symptoms: map[string]float64{
					"nausea": 0.30, "vomiting": 0.30, "diarrhea": 0.30, "fever": 0.10,
				},
			},
			{
				name: "Migraine",
				symptoms: map[string]float64{
					"headache": 0.50, "nausea": 0.25, "light_sensitivity": 0.25,
				},
			},
		},
	}
}

// Score ranks conditions by weighted symptom match. Quantified fevers at or
// above the cutoff also satisfy high_fever patterns.
func (s *RuleScorer) Score(report *SymptomReport) ([]ConditionCandidate, error) {
	if report == nil || len(report.Symptoms) == 0 {
		return nil, fmt.Errorf("%w: empty symptom set", ErrInvalidInput)
	}

	present := make(map[string]bool, len(report.Symptoms)+1)
	for _, raw := range report.Symptoms {
		code, magnitude := symptomCode(raw)
		if code == "" {
			return nil, fmt.Errorf("%w: blank symptom code", ErrInvalidInput)
		}
		present[code] = true
		if code == "fever" && magnitude >= s.highFeverCutoffF {
			present["high_fever"] = true
		}
	}

	candidates := make([]ConditionCandidate, 0, len(s.rules))
	for _, rule := range s.rules {
		var weight float64
		var matched []string
		var reasons []string
		for code, w := range rule.symptoms {
			if present[code] {
				weight += w
				matched = append(matched, code)
			}
		}
		if len(matched) == 0 {
			continue
		}
		sort.Strings(matched)
		for _, code := range matched {
			reasons = append(reasons, "symptom-match:"+code)
		}

		probability := math.Round(weight * 100)
		if report.Age >= 65 && rule.elderlyBoost > 0 {
			probability = math.Min(probability+rule.elderlyBoost, 100)
			reasons = append(reasons, "age-risk:65+")
		}

		candidates = append(candidates, ConditionCandidate{
			Name:        rule.name,
			Probability: probability,
			Confidence:  BandFor(probability),
			Symptoms:    matched,
			Reasons:     reasons,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Probability != candidates[j].Probability {
			return candidates[i].Probability > candidates[j].Probability
		}
		return candidates[i].Name < candidates[j].Name
	})

	return candidates, nil
}

var _ Scorer = (*RuleScorer)(nil)
