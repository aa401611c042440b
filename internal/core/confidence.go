package core

import (
	"sync/atomic"
)

// neutralScore is returned when no analyzer contributed usable evidence
const neutralScore = 0.5

// Calculator fuses analyzer scores into one combined probability and decides
// the three-way triage outcome. Weight and threshold reads are lock-free;
// mutations swap in new immutable values.
type Calculator struct {
	weights    atomic.Pointer[WeightTable]
	thresholds atomic.Pointer[Thresholds]
}

// NewCalculator creates a calculator with the given weight table and thresholds
func NewCalculator(weights *WeightTable, thresholds Thresholds) *Calculator {
	c := &Calculator{}
	c.weights.Store(weights)
	c.thresholds.Store(&thresholds)
	return c
}

// NewDefaultCalculator creates a calculator with default weights and thresholds
func NewDefaultCalculator() *Calculator {
	return NewCalculator(DefaultWeights(), DefaultThresholds())
}

// CalculateConfidence computes the confidence-weighted fused probability.
// Each score's effective weight is its method weight scaled by the score's
// own confidence, so a method that is unsure about this particular email
// contributes less than its configured weight would suggest.
func (c *Calculator) CalculateConfidence(scores []DetectionScore) float64 {
	table := c.weights.Load()

	var weightedSum, totalWeight float64
	for _, score := range scores {
		effective := table.Weight(score.Method) * score.Confidence
		weightedSum += score.Score * effective
		totalWeight += effective
	}

	if totalWeight == 0 {
		return neutralScore
	}
	return weightedSum / totalWeight
}

// NeedsVerification reports whether a combined score falls in the ambiguous
// band; both thresholds are exclusive
func (c *Calculator) NeedsVerification(combined float64) bool {
	t := c.thresholds.Load()
	return combined > t.Low && combined < t.High
}

// IsNewsletter reports whether a combined score clears the high threshold
func (c *Calculator) IsNewsletter(combined float64) bool {
	return combined >= c.thresholds.Load().High
}

// SetMethodWeight replaces one method's weight. The new table is validated
// and renormalized before being swapped in; invalid weights are rejected
// without touching the live table.
func (c *Calculator) SetMethodWeight(m DetectionMethod, weight float64) error {
	for {
		current := c.weights.Load()
		next, err := current.With(m, weight)
		if err != nil {
			return err
		}
		if c.weights.CompareAndSwap(current, next) {
			return nil
		}
	}
}

// SetThresholds replaces the triage thresholds after validation
func (c *Calculator) SetThresholds(low, high float64) error {
	t, err := NewThresholds(low, high)
	if err != nil {
		return err
	}
	c.thresholds.Store(&t)
	return nil
}

// Weights returns the current weight table
func (c *Calculator) Weights() *WeightTable {
	return c.weights.Load()
}

// Thresholds returns the current triage thresholds
func (c *Calculator) Thresholds() Thresholds {
	return *c.thresholds.Load()
}
