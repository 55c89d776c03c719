package portfolio

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/domain"
	"github.com/hrninfomeet-wq/riskengine/pkg/formulas"
)

// Violation kinds reported by the analyzer. These are advisory flags, not
// errors: the report is still produced.
const (
	ViolationMaxPosition    = "max_position_size"
	ViolationMaxSector      = "max_sector_exposure"
	ViolationMaxCorrelation = "max_correlation"
)

// Violation flags a constraint breach found during analysis
type Violation struct {
	Kind    string  `json:"kind"`
	Subject string  `json:"subject"`
	Value   float64 `json:"value"`
	Limit   float64 `json:"limit"`
}

// Input carries everything Analyze needs: a position snapshot plus the return
// series the collaborators supply. Returns maps symbol to chronological daily
// returns; PortfolioReturns is the aggregate daily return series used for
// risk-adjusted ratios.
type Input struct {
	Positions        []Position
	TotalValue       float64
	Returns          map[string][]float64
	PortfolioReturns []float64
	Confidence       float64 // VaR confidence level, defaults to 0.95
}

// Report is the aggregate risk picture for one portfolio snapshot
type Report struct {
	PortfolioVaR         float64           `json:"portfolio_var"` // Fraction of total value
	PortfolioVaRAbsolute float64           `json:"portfolio_var_absolute"`
	SharpeRatio          *float64          `json:"sharpe_ratio"`
	SortinoRatio         *float64          `json:"sortino_ratio"`
	DiversificationScore float64           `json:"diversification_score"`
	RiskScore            float64           `json:"risk_score"`
	AverageCorrelation   float64           `json:"average_correlation"`
	Correlations         []CorrelationPair `json:"correlations,omitempty"`
	Violations           []Violation       `json:"violations,omitempty"`
	PositionCount        int               `json:"position_count"`
	TotalValue           float64           `json:"total_value"`
	Degraded             bool              `json:"degraded"`
}

// Analyzer aggregates position-level risk into portfolio metrics
type Analyzer struct {
	cfg  config.PortfolioConfig
	risk config.RiskConfig
	log  zerolog.Logger
}

// NewAnalyzer creates a portfolio analyzer
func NewAnalyzer(cfg config.PortfolioConfig, risk config.RiskConfig, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg:  cfg,
		risk: risk,
		log:  logger.With().Str("component", "portfolio_analyzer").Logger(),
	}
}

// Analyze computes aggregate VaR, risk-adjusted ratios, diversification and
// constraint flags for a portfolio snapshot. Missing correlation pairs and
// single-position portfolios degrade to the fallback correlation instead of
// failing; only an empty portfolio is a hard error.
func (a *Analyzer) Analyze(in Input) (Report, error) {
	if len(in.Positions) == 0 {
		return Report{}, fmt.Errorf("%w: portfolio has no positions", domain.ErrInsufficientData)
	}

	confidence := in.Confidence
	if confidence == 0 {
		confidence = 0.95
	}

	report := Report{
		PositionCount: len(in.Positions),
		TotalValue:    in.TotalValue,
	}

	// Per-position VaR, allocation-weighted. Positions without a usable
	// return series fall back to the configured volatility so sizing stays
	// conservative rather than failing the whole analysis.
	positionVaRs := make([]float64, len(in.Positions))
	for i, pos := range in.Positions {
		returns, ok := in.Returns[pos.Symbol]
		if !ok || len(returns) < a.risk.MinimumObservations {
			positionVaRs[i] = a.fallbackVaR(confidence)
			report.Degraded = true
			continue
		}
		positionVaRs[i] = formulas.ValueAtRisk(returns, confidence)
	}

	symbols := make([]string, len(in.Positions))
	for i, pos := range in.Positions {
		symbols[i] = pos.Symbol
	}

	pairs := CorrelationMatrix(in.Returns, symbols)
	report.Correlations = pairs

	expectedPairs := len(symbols) * (len(symbols) - 1) / 2
	avgCorr := averageCorrelation(pairs)
	if len(in.Positions) < 2 || len(pairs) < expectedPairs {
		// Missing pairwise data: assume moderate co-movement rather than
		// either extreme.
		avgCorr = blendFallback(pairs, expectedPairs, a.cfg.FallbackCorrelation)
		report.Degraded = true
	}
	report.AverageCorrelation = avgCorr

	report.PortfolioVaR = a.aggregateVaR(in.Positions, positionVaRs, avgCorr)
	report.PortfolioVaRAbsolute = report.PortfolioVaR * in.TotalValue

	report.SharpeRatio = formulas.SharpeRatio(in.PortfolioReturns, a.cfg.RiskFreeRate, formulas.TradingDaysPerYear)
	report.SortinoRatio = formulas.SortinoRatio(in.PortfolioReturns, a.cfg.RiskFreeRate, 0, formulas.TradingDaysPerYear)

	report.DiversificationScore = a.diversificationScore(len(in.Positions), avgCorr)
	report.Violations = a.checkConstraints(in.Positions, pairs)
	report.RiskScore = a.riskScore(report.PortfolioVaR, report.DiversificationScore, len(report.Violations))

	a.log.Debug().
		Int("positions", report.PositionCount).
		Float64("portfolio_var", report.PortfolioVaR).
		Float64("avg_correlation", avgCorr).
		Int("violations", len(report.Violations)).
		Bool("degraded", report.Degraded).
		Msg("Portfolio analyzed")

	return report, nil
}

// aggregateVaR interpolates between the largest single-position contribution
// (perfect diversification) and the naive allocation-weighted sum (perfect
// correlation) by the average pairwise correlation.
func (a *Analyzer) aggregateVaR(positions []Position, positionVaRs []float64, avgCorr float64) float64 {
	naiveSum := 0.0
	largest := 0.0
	for i, pos := range positions {
		contribution := pos.Allocation * positionVaRs[i]
		naiveSum += contribution
		if contribution > largest {
			largest = contribution
		}
	}
	return largest + avgCorr*(naiveSum-largest)
}

// fallbackVaR is the parametric daily VaR implied by the configured fallback
// volatility.
func (a *Analyzer) fallbackVaR(confidence float64) float64 {
	dailyVol := a.risk.FallbackVolatility / math.Sqrt(formulas.TradingDaysPerYear)
	return distuv.UnitNormal.Quantile(confidence) * dailyVol
}

// diversificationScore increases with position count up to the configured
// minimum and decreases as average pairwise correlation rises.
func (a *Analyzer) diversificationScore(count int, avgCorr float64) float64 {
	countScore := float64(count) / float64(a.cfg.MinDiversification)
	if countScore > 1 {
		countScore = 1
	}
	return 0.5*countScore + 0.5*(1-avgCorr)
}

// riskScore is a composite in [0,1]: higher means riskier
func (a *Analyzer) riskScore(portfolioVaR, diversification float64, violations int) float64 {
	varComponent := portfolioVaR / 0.10
	if varComponent > 1 {
		varComponent = 1
	}
	score := 0.6*varComponent + 0.4*(1-diversification) + 0.05*float64(violations)
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

func (a *Analyzer) checkConstraints(positions []Position, pairs []CorrelationPair) []Violation {
	violations := make([]Violation, 0)

	sectorExposure := make(map[string]float64)
	for _, pos := range positions {
		if pos.Allocation > a.cfg.MaxPositionSize {
			violations = append(violations, Violation{
				Kind:    ViolationMaxPosition,
				Subject: pos.Symbol,
				Value:   pos.Allocation,
				Limit:   a.cfg.MaxPositionSize,
			})
		}
		if pos.Sector != "" {
			sectorExposure[pos.Sector] += pos.Allocation
		}
	}

	for sector, exposure := range sectorExposure {
		if exposure > a.cfg.MaxSectorExposure {
			violations = append(violations, Violation{
				Kind:    ViolationMaxSector,
				Subject: sector,
				Value:   exposure,
				Limit:   a.cfg.MaxSectorExposure,
			})
		}
	}

	for _, pair := range pairs {
		if math.Abs(pair.Correlation) > a.cfg.MaxCorrelation {
			violations = append(violations, Violation{
				Kind:    ViolationMaxCorrelation,
				Subject: pair.Symbol1 + ":" + pair.Symbol2,
				Value:   pair.Correlation,
				Limit:   a.cfg.MaxCorrelation,
			})
		}
	}

	return violations
}

// blendFallback averages observed pair correlations with the fallback value
// standing in for each missing pair.
func blendFallback(pairs []CorrelationPair, expected int, fallback float64) float64 {
	if expected == 0 {
		return fallback
	}
	sum := 0.0
	for _, p := range pairs {
		sum += p.Correlation
	}
	sum += float64(expected-len(pairs)) * fallback
	avg := sum / float64(expected)
	if avg < 0 {
		return 0
	}
	if avg > 1 {
		return 1
	}
	return avg
}
