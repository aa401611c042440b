package core

import "fmt"

// WeightTable maps detection methods to their fusion weights. Tables are
// immutable; With returns a new validated table so concurrent readers never
// observe a partial update.
type WeightTable struct {
	weights map[DetectionMethod]float64
}

// DefaultWeights returns the default method weights. Header evidence carries
// the largest weight because it is the least noisy signal available.
func DefaultWeights() *WeightTable {
	return NewWeightTable(map[DetectionMethod]float64{
		MethodHeader:           0.4,
		MethodContentStructure: 0.3,
		MethodSenderReputation: 0.2,
		MethodUserFeedback:     0.1,
	})
}

// NewWeightTable builds a table from an explicit weight map
func NewWeightTable(weights map[DetectionMethod]float64) *WeightTable {
	copied := make(map[DetectionMethod]float64, len(weights))
	for m, w := range weights {
		copied[m] = w
	}
	return &WeightTable{weights: copied}
}

// Weight returns the configured weight for a method (0 if unknown)
func (t *WeightTable) Weight(m DetectionMethod) float64 {
	return t.weights[m]
}

// Sum returns the total of all weights
func (t *WeightTable) Sum() float64 {
	sum := 0.0
	for _, w := range t.weights {
		sum += w
	}
	return sum
}

// With returns a new table with the method's weight replaced. Weights must be
// in [0,1]; if the resulting sum exceeds 1 all weights are rescaled
// proportionally so the sum is exactly 1.
func (t *WeightTable) With(m DetectionMethod, weight float64) (*WeightTable, error) {
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("weight for %s must be between 0 and 1, got %v", m, weight)
	}

	next := NewWeightTable(t.weights)
	next.weights[m] = weight

	if sum := next.Sum(); sum > 1 {
		for method, w := range next.weights {
			next.weights[method] = w / sum
		}
	}
	return next, nil
}

// Thresholds holds the dual triage thresholds: combined scores strictly
// between Low and High are ambiguous and escalate to a human
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultThresholds returns the default triage thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.35, High: 0.65}
}

// NewThresholds validates and builds a threshold pair
func NewThresholds(low, high float64) (Thresholds, error) {
	if low < 0 || high > 1 {
		return Thresholds{}, fmt.Errorf("thresholds must lie within [0,1], got low=%v high=%v", low, high)
	}
	if low >= high {
		return Thresholds{}, fmt.Errorf("low threshold %v must be strictly below high threshold %v", low, high)
	}
	return Thresholds{Low: low, High: high}, nil
}
