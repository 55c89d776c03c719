package portfolio

import (
	"math"

	"github.com/hrninfomeet-wq/riskengine/pkg/formulas"
)

// CorrelationPair is a pairwise return correlation between two symbols
type CorrelationPair struct {
	Symbol1     string  `json:"symbol1"`
	Symbol2     string  `json:"symbol2"`
	Correlation float64 `json:"correlation"`
}

// CorrelationMatrix computes pairwise correlations from per-symbol return
// series. Pairs where either series is missing or too short are skipped;
// callers detect the gap by the missing map key.
func CorrelationMatrix(returns map[string][]float64, symbols []string) []CorrelationPair {
	pairs := make([]CorrelationPair, 0)

	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			a, okA := returns[symbols[i]]
			b, okB := returns[symbols[j]]
			if !okA || !okB || len(a) < 2 || len(b) < 2 {
				continue
			}

			corr := formulas.Correlation(a, b)
			if math.IsNaN(corr) {
				continue
			}

			pairs = append(pairs, CorrelationPair{
				Symbol1:     symbols[i],
				Symbol2:     symbols[j],
				Correlation: corr,
			})
		}
	}

	return pairs
}

// BuildCorrelationMap converts correlation pairs to a map for O(1) lookups.
// Keys use "SYMBOL1:SYMBOL2" format with both orderings stored for symmetric
// access.
func BuildCorrelationMap(pairs []CorrelationPair) map[string]float64 {
	correlationMap := make(map[string]float64, len(pairs)*2)

	for _, pair := range pairs {
		correlationMap[pair.Symbol1+":"+pair.Symbol2] = pair.Correlation
		correlationMap[pair.Symbol2+":"+pair.Symbol1] = pair.Correlation
	}

	return correlationMap
}

// averageCorrelation returns the mean pairwise correlation, clamped to
// [0, 1] for use as a diversification-benefit weight.
func averageCorrelation(pairs []CorrelationPair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range pairs {
		sum += p.Correlation
	}
	avg := sum / float64(len(pairs))
	if avg < 0 {
		return 0
	}
	if avg > 1 {
		return 1
	}
	return avg
}
