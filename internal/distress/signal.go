package distress

import (
	"errors"
	"time"

	"github.com/caresignal/triage-platform/internal/triage"
)

// ErrMalformedFrame is returned for frames with no feature data.
var ErrMalformedFrame = errors.New("distress: malformed feature frame")

// FeatureFrame is one fixed-size numeric feature vector from the
// audio-capture collaborator. Frames are consumed exactly once.
type FeatureFrame struct {
	SessionID string    `json:"session_id"`
	Features  []float64 `json:"features"`
	At        time.Time `json:"at"`
}

// Signal is an emitted distress classification. Ephemeral: it exists only to
// trigger escalation policy, never persisted as raw audio.
type Signal struct {
	SessionID string                  `json:"session_id"`
	PatientID string                  `json:"patient_id"`
	Score     float64                 `json:"score"`
	Decision  triage.DistressDecision `json:"decision"`
	At        time.Time               `json:"at"`
}

// ClassifierFunc scores a rolling window of frames in [0,1].
// Pluggable so the acoustic model can be swapped without touching the
// monitor state machine.
type ClassifierFunc func(window []FeatureFrame) float64

// MeanEnergyClassifier is the default classifier: the clamped mean feature
// magnitude across the window. A stand-in for a real acoustic model.
func MeanEnergyClassifier(window []FeatureFrame) float64 {
	var sum float64
	var n int
	for _, frame := range window {
		for _, v := range frame.Features {
			if v < 0 {
				v = -v
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	score := sum / float64(n)
	if score > 1 {
		score = 1
	}
	return score
}
