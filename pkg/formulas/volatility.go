package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// EWMAVolatility estimates daily volatility as an exponentially weighted
// moving average of squared returns (RiskMetrics style).
//
// variance[t] = decay * variance[t-1] + (1 - decay) * return[t]^2
//
// The standard decay factor is 0.94. The recursion is seeded with the first
// squared return.
func EWMAVolatility(returns []float64, decay float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if decay <= 0 || decay >= 1 {
		decay = 0.94
	}

	variance := returns[0] * returns[0]
	for _, r := range returns[1:] {
		variance = decay*variance + (1-decay)*r*r
	}

	return math.Sqrt(variance)
}

// LookbackVolatility estimates daily volatility as the standard deviation of
// the most recent n returns. When fewer than n observations are available the
// whole series is used.
func LookbackVolatility(returns []float64, n int) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if n > 0 && len(returns) > n {
		returns = returns[len(returns)-n:]
	}
	return StdDev(returns)
}

// ATRVolatility estimates daily volatility from OHLC data as the Average True
// Range over the given period, normalized by the latest close so the result is
// a fraction of price comparable to a daily return volatility.
//
// Returns nil if there is insufficient data for the period.
func ATRVolatility(high, low, close []float64, period int) *float64 {
	if period <= 0 {
		period = 14
	}
	if len(close) < period+1 || len(high) != len(close) || len(low) != len(close) {
		return nil
	}

	atr := talib.Atr(high, low, close, period)
	last := atr[len(atr)-1]
	lastClose := close[len(close)-1]
	if math.IsNaN(last) || lastClose <= 0 {
		return nil
	}

	normalized := last / lastClose
	return &normalized
}
