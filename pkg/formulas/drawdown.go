package formulas

// DrawdownMetrics represents drawdown analysis results
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Maximum peak-to-trough decline (0.25 = 25%)
	CurrentDrawdown float64 `json:"current_drawdown"` // Current decline from peak
	DaysInDrawdown  int     `json:"days_in_drawdown"` // Observations since peak
	PeakValue       float64 `json:"peak_value"`
	CurrentValue    float64 `json:"current_value"`
}

// Drawdown calculates drawdown metrics from a chronological value series.
// Returns nil when fewer than 2 observations are available.
func Drawdown(values []float64) *DrawdownMetrics {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]
	peakIndex := 0
	currentValue := values[len(values)-1]

	for i, v := range values {
		if v > peak {
			peak = v
			peakIndex = i
		}

		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	currentDrawdown := 0.0
	if peak > 0 {
		currentDrawdown = (peak - currentValue) / peak
	}

	return &DrawdownMetrics{
		MaxDrawdown:     maxDrawdown,
		CurrentDrawdown: currentDrawdown,
		DaysInDrawdown:  len(values) - 1 - peakIndex,
		PeakValue:       peak,
		CurrentValue:    currentValue,
	}
}
