package formulas

import (
	"math"
	"sort"
)

// ValueAtRisk calculates the historical Value at Risk at the given confidence
// level from a series of periodic returns. The result is the loss magnitude at
// the (1 - confidence) quantile, expressed as a positive fraction. A series
// with no losses at that quantile yields zero.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// For 95% confidence take the 5th percentile of the return distribution.
	tailProbability := 1.0 - confidence
	index := int(float64(len(sorted)) * tailProbability)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	loss := -sorted[index]
	if loss < 0 {
		return 0.0
	}
	return loss
}

// ConditionalVaR calculates the Expected Shortfall at the given confidence
// level: the average loss in the tail beyond the VaR quantile, as a positive
// fraction. By construction CVaR >= VaR at the same confidence level.
func ConditionalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailProbability := 1.0 - confidence
	tailCount := int(math.Ceil(float64(len(sorted)) * tailProbability))
	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	sum := 0.0
	for _, r := range sorted[:tailCount] {
		sum += r
	}

	loss := -(sum / float64(tailCount))
	if loss < 0 {
		return 0.0
	}

	// The tail mean can land above the quantile when the tail is all gains;
	// keep the CVaR >= VaR ordering intact after clamping.
	if v := ValueAtRisk(returns, confidence); loss < v {
		return v
	}
	return loss
}
