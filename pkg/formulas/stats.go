// Package formulas provides shared financial math used across the risk engine.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization basis for daily observations.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Returns converts a chronological price series to simple periodic returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && !math.IsNaN(prices[i]) && !math.IsNaN(prices[i-1]) {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility calculates annualized volatility from daily returns.
// Formula: StdDev of daily returns x sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// AnnualReturn calculates the compound annual growth rate from daily returns.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(252/N) - 1
func AnnualReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= (1 + r)
	}

	numPeriods := float64(len(returns))

	// For very short series, annualizing explodes; return the simple
	// cumulative return instead.
	if numPeriods < 3 {
		return cumulative - 1
	}

	years := numPeriods / TradingDaysPerYear
	return math.Pow(cumulative, 1.0/years) - 1
}
