package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/domain"
	"github.com/hrninfomeet-wq/riskengine/pkg/formulas"
)

// Calculator computes VaR/CVaR assessments from price series
type Calculator struct {
	cfg config.RiskConfig
	vol config.VolatilityConfig
	log zerolog.Logger
}

// NewCalculator creates a new VaR calculator
func NewCalculator(cfg config.RiskConfig, vol config.VolatilityConfig, log zerolog.Logger) *Calculator {
	return &Calculator{
		cfg: cfg,
		vol: vol,
		log: log.With().Str("component", "var_calculator").Logger(),
	}
}

// ComputeVaR calculates Value at Risk and Expected Shortfall for a price
// series at the given confidence level over the given horizon.
//
// A series shorter than the configured minimum does not fail: the result is
// built from the configured fallback volatility and flagged, so position
// sizing can proceed conservatively. Monte-Carlo runs under its latency
// budget; on timeout the parametric estimate is substituted and the result is
// flagged as degraded.
func (c *Calculator) ComputeVaR(ctx context.Context, prices []float64, confidence float64, method Method, horizonDays int) (Assessment, error) {
	start := time.Now()

	if !c.cfg.ValidConfidence(confidence) {
		return Assessment{}, fmt.Errorf("%w: confidence level %v not in configured set", domain.ErrInvalidParameter, confidence)
	}
	if !c.cfg.ValidHorizon(horizonDays) {
		return Assessment{}, fmt.Errorf("%w: time horizon %d not in configured set", domain.ErrInvalidParameter, horizonDays)
	}
	switch method {
	case MethodHistorical, MethodParametric, MethodMonteCarlo:
	default:
		return Assessment{}, fmt.Errorf("%w: unknown VaR method %q", domain.ErrInvalidParameter, method)
	}

	lastPrice := 0.0
	if len(prices) > 0 {
		lastPrice = prices[len(prices)-1]
	}

	if len(prices) < c.cfg.MinimumObservations {
		c.log.Warn().
			Int("observations", len(prices)).
			Int("minimum", c.cfg.MinimumObservations).
			Msg("Insufficient observations, using fallback volatility")
		return c.fallbackAssessment(method, confidence, horizonDays, lastPrice, start), nil
	}

	returns := formulas.Returns(prices)
	scale := math.Sqrt(float64(horizonDays))

	var (
		varPct, cvarPct float64
		dailyVol        float64
		degraded        bool
	)

	switch method {
	case MethodHistorical:
		varPct = formulas.ValueAtRisk(returns, confidence) * scale
		cvarPct = formulas.ConditionalVaR(returns, confidence) * scale
		dailyVol = formulas.StdDev(returns)

	case MethodParametric:
		dailyVol = c.estimateVolatility(returns)
		varPct, cvarPct = normalVaR(dailyVol, confidence, scale)

	case MethodMonteCarlo:
		dailyVol = c.estimateVolatility(returns)
		mcCtx, cancel := context.WithTimeout(ctx, c.cfg.MonteCarloBudget)
		v, cv, err := c.monteCarlo(mcCtx, returns, confidence, horizonDays)
		cancel()
		if err != nil {
			if !errors.Is(err, domain.ErrComputationTimeout) {
				return Assessment{}, err
			}
			// Degrade to the parametric estimate rather than blocking.
			c.log.Warn().
				Dur("budget", c.cfg.MonteCarloBudget).
				Msg("Monte-Carlo VaR timed out, degrading to parametric")
			varPct, cvarPct = normalVaR(dailyVol, confidence, scale)
			degraded = true
		} else {
			varPct, cvarPct = v, cv
		}
	}

	elapsed := time.Since(start)
	c.log.Debug().
		Str("method", string(method)).
		Float64("confidence", confidence).
		Int("horizon_days", horizonDays).
		Float64("var_pct", varPct).
		Float64("cvar_pct", cvarPct).
		Dur("elapsed", elapsed).
		Msg("Computed VaR")

	return Assessment{
		Method:               method,
		ConfidenceLevel:      confidence,
		TimeHorizonDays:      horizonDays,
		VaRPercent:           varPct,
		CVaRPercent:          cvarPct,
		VaRAbsolute:          varPct * lastPrice,
		DailyVolatility:      dailyVol,
		AnnualizedVolatility: dailyVol * math.Sqrt(formulas.TradingDaysPerYear),
		Degraded:             degraded,
		ProcessingTimeMs:     float64(elapsed.Microseconds()) / 1000.0,
	}, nil
}

// estimateVolatility estimates daily volatility per the configured estimator
func (c *Calculator) estimateVolatility(returns []float64) float64 {
	if c.vol.Estimator == "lookback" {
		return formulas.LookbackVolatility(returns, c.vol.Lookback)
	}
	return formulas.EWMAVolatility(returns, c.vol.EwmaDecay)
}

// fallbackAssessment builds a conservative assessment from the configured
// fallback volatility when the series is too short for estimation.
func (c *Calculator) fallbackAssessment(method Method, confidence float64, horizonDays int, lastPrice float64, start time.Time) Assessment {
	dailyVol := c.cfg.FallbackVolatility / math.Sqrt(formulas.TradingDaysPerYear)
	scale := math.Sqrt(float64(horizonDays))
	varPct, cvarPct := normalVaR(dailyVol, confidence, scale)

	elapsed := time.Since(start)
	return Assessment{
		Method:               method,
		ConfidenceLevel:      confidence,
		TimeHorizonDays:      horizonDays,
		VaRPercent:           varPct,
		CVaRPercent:          cvarPct,
		VaRAbsolute:          varPct * lastPrice,
		DailyVolatility:      dailyVol,
		AnnualizedVolatility: c.cfg.FallbackVolatility,
		Fallback:             true,
		ProcessingTimeMs:     float64(elapsed.Microseconds()) / 1000.0,
	}
}

// normalVaR computes VaR and Expected Shortfall under normal returns.
//
//	VaR  = z(confidence) * sigma * sqrt(horizon)
//	CVaR = sigma * sqrt(horizon) * phi(z) / (1 - confidence)
func normalVaR(dailyVol, confidence, scale float64) (varPct, cvarPct float64) {
	z := distuv.UnitNormal.Quantile(confidence)
	varPct = z * dailyVol * scale
	cvarPct = dailyVol * scale * distuv.UnitNormal.Prob(z) / (1 - confidence)
	return varPct, cvarPct
}
