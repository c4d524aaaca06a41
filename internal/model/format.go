package model

import (
	"fmt"
	"math"
)

// Softmax converts raw scores to a probability distribution. The maximum is
// subtracted first so large logits do not overflow.
func Softmax(scores []float32) []float64 {
	if len(scores) == 0 {
		return nil
	}
	maxScore := float64(scores[0])
	for _, s := range scores[1:] {
		if float64(s) > maxScore {
			maxScore = float64(s)
		}
	}

	probs := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(float64(s) - maxScore)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Argmax returns the index of the largest value, preferring the lowest index
// on ties.
func Argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// Format turns a score vector into a PredictionResult over labels.
func Format(scores []float32, labels ClassLabels) (*PredictionResult, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("empty label set")
	}
	if len(scores) != len(labels) {
		return nil, &ShapeMismatchError{
			What:     "score vector",
			Expected: fmt.Sprintf("%d scores", len(labels)),
			Got:      fmt.Sprintf("%d scores", len(scores)),
		}
	}
	for i, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, fmt.Errorf("score %d for %q is not finite: %v", i, labels[i], s)
		}
	}

	probs := Softmax(scores)
	idx := Argmax(probs)

	probabilities := make(Probabilities, len(labels))
	for i, label := range labels {
		probabilities[i] = LabelProbability{Label: label, Probability: probs[i]}
	}

	return &PredictionResult{
		Label:         labels[idx],
		LabelIndex:    idx,
		Probabilities: probabilities,
	}, nil
}
