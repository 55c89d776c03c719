// Package risk implements Value-at-Risk and Expected Shortfall calculation
// over a captured price series. All calculations are pure functions of their
// inputs plus the immutable engine configuration.
package risk

// Method selects the VaR calculation approach
type Method string

const (
	MethodHistorical Method = "historical"
	MethodParametric Method = "parametric"
	MethodMonteCarlo Method = "montecarlo"
)

// Assessment is the result of one VaR calculation. Percentages are fractions
// of position value; VaRAbsolute is per unit of the instrument at the latest
// observed price.
type Assessment struct {
	Method          Method  `json:"method"`
	ConfidenceLevel float64 `json:"confidence_level"`
	TimeHorizonDays int     `json:"time_horizon_days"`

	VaRPercent  float64 `json:"var_pct"`
	CVaRPercent float64 `json:"cvar_pct"`
	VaRAbsolute float64 `json:"var_absolute"`

	DailyVolatility      float64 `json:"daily_volatility"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`

	// Fallback marks results built from the configured fallback volatility
	// because the price series was too short. Degraded marks results where
	// the requested method timed out and a cheaper one was substituted.
	Fallback bool `json:"fallback"`
	Degraded bool `json:"degraded"`

	ProcessingTimeMs float64 `json:"processing_time_ms"`
}
