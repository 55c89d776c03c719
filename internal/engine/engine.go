// Package engine wires the risk components behind one explicitly constructed
// facade. Callers inject configuration and collaborators; there is no
// process-wide singleton.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/domain"
	"github.com/hrninfomeet-wq/riskengine/internal/metrics"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/controls"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/history"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/portfolio"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/risk"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/sizing"
	"github.com/hrninfomeet-wq/riskengine/pkg/formulas"
)

// PriceProvider supplies chronological price history for a symbol. An empty
// asOf means the latest available data; a date bound guarantees no look-ahead.
type PriceProvider interface {
	Closes(symbol string, limit int, asOf string) ([]float64, error)
	Candles(symbol string, limit int, asOf string) ([]history.Candle, error)
}

// Engine is the facade over the four risk components
type Engine struct {
	cfg        *config.Config
	log        zerolog.Logger
	calculator *risk.Calculator
	sizer      *sizing.Sizer
	analyzer   *portfolio.Analyzer
	controller *controls.Controller
	prices     PriceProvider
}

// New creates an engine from configuration and a price provider
func New(cfg *config.Config, prices PriceProvider, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		log:        logger.With().Str("component", "engine").Logger(),
		calculator: risk.NewCalculator(cfg.Risk, cfg.Volatility, logger),
		sizer:      sizing.NewSizer(cfg.Kelly, logger),
		analyzer:   portfolio.NewAnalyzer(cfg.Portfolio, cfg.Risk, logger),
		controller: controls.New(cfg.Controls, logger),
		prices:     prices,
	}
}

// ComputeVaR quantifies potential loss for a price series
func (e *Engine) ComputeVaR(ctx context.Context, prices []float64, confidence float64, method risk.Method, horizonDays int) (risk.Assessment, error) {
	start := time.Now()
	assessment, err := e.calculator.ComputeVaR(ctx, prices, confidence, method, horizonDays)
	metrics.RecordEvaluation("compute_var", outcome(err), time.Since(start).Seconds())
	return assessment, err
}

// SizePosition computes a Kelly-derived position size
func (e *Engine) SizePosition(in sizing.Input) (sizing.Result, error) {
	start := time.Now()
	result, err := e.sizer.Size(in)
	metrics.RecordEvaluation("size_position", outcome(err), time.Since(start).Seconds())
	return result, err
}

// AnalyzePortfolio aggregates risk across a portfolio snapshot
func (e *Engine) AnalyzePortfolio(in portfolio.Input) (portfolio.Report, error) {
	start := time.Now()
	report, err := e.analyzer.Analyze(in)
	metrics.RecordEvaluation("analyze_portfolio", outcome(err), time.Since(start).Seconds())
	return report, err
}

// ComputeRiskControls derives stop/take-profit/trailing levels for a position
func (e *Engine) ComputeRiskControls(in controls.Input) (controls.ControlSet, error) {
	start := time.Now()
	set, err := e.controller.Compute(in)
	metrics.RecordEvaluation("compute_controls", outcome(err), time.Since(start).Seconds())
	return set, err
}

// AssessSymbol fetches the symbol's price history and computes its VaR. The
// lookback window covers a trading year; shorter histories fall through to the
// calculator's fallback policy.
func (e *Engine) AssessSymbol(ctx context.Context, symbol string, confidence float64, method risk.Method, horizonDays int, asOf string) (risk.Assessment, error) {
	prices, err := e.prices.Closes(symbol, 252, asOf)
	if err != nil {
		return risk.Assessment{}, err
	}
	return e.ComputeVaR(ctx, prices, confidence, method, horizonDays)
}

// volatilityLookback is the candle window for SymbolVolatility: one quarter of
// trading history, enough for the ATR smoothing to settle.
const volatilityLookback = 63

// SymbolVolatility estimates a symbol's daily volatility from its stored
// candle history: Average True Range normalized by the latest close. Histories
// too short for the ATR warmup fall back to the configured close-to-close
// estimator.
func (e *Engine) SymbolVolatility(symbol, asOf string) (float64, error) {
	candles, err := e.prices.Candles(symbol, volatilityLookback, asOf)
	if err != nil {
		return 0, err
	}
	if len(candles) < 2 {
		return 0, fmt.Errorf("%w: no candle history for %s", domain.ErrInsufficientData, symbol)
	}

	high := make([]float64, len(candles))
	low := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		closes[i] = c.Close
	}

	if atr := formulas.ATRVolatility(high, low, closes, e.cfg.Volatility.ATRPeriod); atr != nil {
		return *atr, nil
	}

	returns := formulas.Returns(closes)
	if e.cfg.Volatility.Estimator == "lookback" {
		return formulas.LookbackVolatility(returns, e.cfg.Volatility.Lookback), nil
	}
	return formulas.EWMAVolatility(returns, e.cfg.Volatility.EwmaDecay), nil
}

// SymbolAssessment is one EvaluateSymbols result. Err is set when that
// symbol's evaluation failed; other symbols are unaffected.
type SymbolAssessment struct {
	Symbol     string
	Assessment risk.Assessment
	Err        error
}

// EvaluateSymbols assesses many symbols in parallel, bounded by the configured
// parallelism. Results preserve input order.
func (e *Engine) EvaluateSymbols(ctx context.Context, symbols []string, confidence float64, method risk.Method, horizonDays int) []SymbolAssessment {
	if len(symbols) == 0 {
		return []SymbolAssessment{}
	}

	type job struct {
		index  int
		symbol string
	}

	jobs := make(chan job, len(symbols))
	results := make([]SymbolAssessment, len(symbols))

	workers := e.cfg.Risk.Parallelism
	if len(symbols) < workers {
		workers = len(symbols)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				assessment, err := e.AssessSymbol(ctx, j.symbol, confidence, method, horizonDays, "")
				results[j.index] = SymbolAssessment{Symbol: j.symbol, Assessment: assessment, Err: err}
			}
		}()
	}

	for i, symbol := range symbols {
		jobs <- job{index: i, symbol: symbol}
	}
	close(jobs)
	wg.Wait()

	return results
}

// Config returns the engine's immutable configuration
func (e *Engine) Config() *config.Config {
	return e.cfg
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
