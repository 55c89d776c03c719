package portfolio

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/domain"
)

func testAnalyzer() *Analyzer {
	return NewAnalyzer(
		config.PortfolioConfig{
			MaxPositionSize:     0.15,
			MaxSectorExposure:   0.30,
			MaxCorrelation:      0.8,
			MinDiversification:  5,
			FallbackCorrelation: 0.3,
			RiskFreeRate:        0.02,
		},
		config.RiskConfig{
			MinimumObservations: 5,
			FallbackVolatility:  0.20,
		},
		zerolog.Nop(),
	)
}

// sineReturns produces a deterministic return series with both gains and
// losses. Phase shifts change the co-movement with other series.
func sineReturns(n int, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.01 * math.Sin(float64(i)*0.7+phase)
	}
	return out
}

func equalWeightedPositions(symbols ...string) []Position {
	alloc := 1.0 / float64(len(symbols))
	positions := make([]Position, len(symbols))
	for i, s := range symbols {
		positions[i] = Position{Symbol: s, Value: alloc * 100000, Allocation: alloc}
	}
	return positions
}

func TestAnalyzeEmptyPortfolio(t *testing.T) {
	_, err := testAnalyzer().Analyze(Input{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestAnalyzeBasicReport(t *testing.T) {
	a := testAnalyzer()

	returns := map[string][]float64{
		"A": sineReturns(30, 0),
		"B": sineReturns(30, 1.5),
		"C": sineReturns(30, 3.0),
	}

	report, err := a.Analyze(Input{
		Positions:        equalWeightedPositions("A", "B", "C"),
		TotalValue:       100000,
		Returns:          returns,
		PortfolioReturns: sineReturns(30, 0.5),
		Confidence:       0.95,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.PositionCount)
	assert.Greater(t, report.PortfolioVaR, 0.0)
	assert.InDelta(t, report.PortfolioVaR*100000, report.PortfolioVaRAbsolute, 1e-6)
	assert.GreaterOrEqual(t, report.DiversificationScore, 0.0)
	assert.LessOrEqual(t, report.DiversificationScore, 1.0)
	assert.GreaterOrEqual(t, report.RiskScore, 0.0)
	assert.LessOrEqual(t, report.RiskScore, 1.0)
	assert.False(t, report.Degraded)
	require.NotNil(t, report.SharpeRatio)
	require.NotNil(t, report.SortinoRatio)
}

func TestAnalyzeVaRBoundedByCorrelationExtremes(t *testing.T) {
	a := testAnalyzer()

	// Perfectly correlated pair: aggregate VaR is the naive weighted sum.
	perfect := map[string][]float64{
		"A": sineReturns(30, 0),
		"B": sineReturns(30, 0),
	}
	positions := equalWeightedPositions("A", "B")

	correlated, err := a.Analyze(Input{
		Positions: positions, TotalValue: 100000, Returns: perfect,
	})
	require.NoError(t, err)

	// Inverse pair: average correlation clamps to 0, aggregate VaR shrinks
	// to the largest single contribution.
	inverse := map[string][]float64{
		"A": sineReturns(30, 0),
		"B": sineReturns(30, math.Pi),
	}
	hedged, err := a.Analyze(Input{
		Positions: positions, TotalValue: 100000, Returns: inverse,
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, correlated.AverageCorrelation, 1e-6)
	assert.InDelta(t, 0.0, hedged.AverageCorrelation, 1e-6)
	assert.Greater(t, correlated.PortfolioVaR, hedged.PortfolioVaR)
}

func TestAnalyzeSinglePositionDegrades(t *testing.T) {
	a := testAnalyzer()

	report, err := a.Analyze(Input{
		Positions:  []Position{{Symbol: "A", Value: 100000, Allocation: 1.0}},
		TotalValue: 100000,
		Returns:    map[string][]float64{"A": sineReturns(30, 0)},
	})
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.InDelta(t, 0.3, report.AverageCorrelation, 1e-9, "fallback correlation")
}

func TestAnalyzeMissingPairDegrades(t *testing.T) {
	a := testAnalyzer()

	// No return series for B: the A:B pair cannot be computed.
	report, err := a.Analyze(Input{
		Positions:  equalWeightedPositions("A", "B"),
		TotalValue: 100000,
		Returns:    map[string][]float64{"A": sineReturns(30, 0)},
	})
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.InDelta(t, 0.3, report.AverageCorrelation, 1e-9)
}

func TestDiversificationScoreDecreasesWithCorrelation(t *testing.T) {
	a := testAnalyzer()

	prev := math.Inf(1)
	for _, corr := range []float64{0.0, 0.25, 0.5, 0.75, 1.0} {
		score := a.diversificationScore(3, corr)
		assert.Less(t, score, prev, "score must strictly decrease as correlation rises")
		prev = score
	}
}

func TestDiversificationScoreIncreasesWithPositionCount(t *testing.T) {
	a := testAnalyzer()

	assert.Less(t, a.diversificationScore(1, 0.3), a.diversificationScore(3, 0.3))
	assert.Less(t, a.diversificationScore(3, 0.3), a.diversificationScore(5, 0.3))
	// Count contribution is floored at the configured minimum.
	assert.InDelta(t, a.diversificationScore(5, 0.3), a.diversificationScore(10, 0.3), 1e-9)
}

func TestAnalyzeConstraintViolations(t *testing.T) {
	a := testAnalyzer()

	positions := []Position{
		{Symbol: "A", Value: 50000, Allocation: 0.5, Sector: "tech"},
		{Symbol: "B", Value: 30000, Allocation: 0.3, Sector: "tech"},
		{Symbol: "C", Value: 20000, Allocation: 0.2, Sector: "energy"},
	}
	returns := map[string][]float64{
		"A": sineReturns(30, 0),
		"B": sineReturns(30, 0), // perfectly correlated with A
		"C": sineReturns(30, 2.0),
	}

	report, err := a.Analyze(Input{Positions: positions, TotalValue: 100000, Returns: returns})
	require.NoError(t, err)

	kinds := make(map[string]int)
	for _, v := range report.Violations {
		kinds[v.Kind]++
	}
	assert.GreaterOrEqual(t, kinds[ViolationMaxPosition], 2, "A and B exceed 15%")
	assert.Equal(t, 1, kinds[ViolationMaxSector], "tech holds 80%")
	assert.GreaterOrEqual(t, kinds[ViolationMaxCorrelation], 1, "A:B correlation is 1.0")
}

func TestAnalyzeShortSeriesUsesFallbackVaR(t *testing.T) {
	a := testAnalyzer()

	report, err := a.Analyze(Input{
		Positions:  equalWeightedPositions("A", "B"),
		TotalValue: 100000,
		Returns: map[string][]float64{
			"A": sineReturns(3, 0), // below minimum observations
			"B": sineReturns(30, 0),
		},
	})
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Greater(t, report.PortfolioVaR, 0.0)
}

func TestFallbackVaRTracksConfidence(t *testing.T) {
	a := testAnalyzer()

	// Single position with no return series: the portfolio VaR is exactly the
	// normal-quantile fallback implied by the configured volatility.
	analyze := func(confidence float64) float64 {
		report, err := a.Analyze(Input{
			Positions:  equalWeightedPositions("A"),
			TotalValue: 100000,
			Confidence: confidence,
		})
		require.NoError(t, err)
		require.True(t, report.Degraded)
		return report.PortfolioVaR
	}

	dailyVol := 0.20 / math.Sqrt(252)
	assert.InDelta(t, distuv.UnitNormal.Quantile(0.95)*dailyVol, analyze(0.95), 1e-12)
	assert.InDelta(t, distuv.UnitNormal.Quantile(0.99)*dailyVol, analyze(0.99), 1e-12)
	assert.InDelta(t, distuv.UnitNormal.Quantile(0.999)*dailyVol, analyze(0.999), 1e-12)
	assert.Greater(t, analyze(0.99), analyze(0.95))
}
