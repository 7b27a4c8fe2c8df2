package rules

import "math"

const (
	// InitialConfidence is assigned the first time a keyword is taught.
	InitialConfidence = 0.5
	// ConfidenceStep is added on every repeated teaching.
	ConfidenceStep = 0.1
	// RecallThreshold must be exceeded for a learned response to be used.
	RecallThreshold = 0.4
)

// NextConfidence computes the confidence after teaching a keyword again.
func NextConfidence(previous float64, known bool) float64 {
	if !known {
		return InitialConfidence
	}
	next := Clamp(previous+ConfidenceStep, 0, 1)
	return math.Round(next*100) / 100
}

// Recallable reports whether a learned response is confident enough to use.
func Recallable(confidence float64) bool {
	return confidence > RecallThreshold
}
