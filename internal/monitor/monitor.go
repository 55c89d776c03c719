// Package monitor re-evaluates per-position and portfolio risk on fixed
// cadences and emits alerts when configured thresholds are breached. It is the
// only component with an ongoing lifecycle; everything it calls is a stateless
// computation over explicit inputs.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/metrics"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/calccache"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/portfolio"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/risk"
	"github.com/hrninfomeet-wq/riskengine/pkg/formulas"
)

// Assessor recomputes a symbol's risk assessment from its price history
type Assessor interface {
	AssessSymbol(ctx context.Context, symbol string, confidence float64, method risk.Method, horizonDays int, asOf string) (risk.Assessment, error)
}

// PortfolioAnalyzer aggregates a portfolio snapshot into a risk report
type PortfolioAnalyzer interface {
	AnalyzePortfolio(in portfolio.Input) (portfolio.Report, error)
}

// PriceProvider supplies chronological closes, bounded by an as-of date
type PriceProvider interface {
	Closes(symbol string, limit int, asOf string) ([]float64, error)
}

// PortfolioProvider supplies a consistent position snapshot
type PortfolioProvider interface {
	Snapshot() ([]portfolio.Position, float64)
}

const (
	tierPositions  = "positions"
	tierPortfolio  = "portfolio"
	tierHistorical = "historical"

	// Lookback window for monitoring evaluations, in trading days.
	monitorLookback = 252

	cacheNamespace = "assessments"
)

// Monitor drives the cadence tiers and owns the alert stream
type Monitor struct {
	cfg      config.MonitorConfig
	log      zerolog.Logger
	assessor Assessor
	analyzer PortfolioAnalyzer
	prices   PriceProvider
	book     PortfolioProvider
	cache    *calccache.Cache // Optional; nil disables recalibration caching

	cron   *cron.Cron
	alerts chan Alert

	mu       sync.Mutex
	subjects map[string]struct{}
	inflight map[string]bool
}

// New creates a monitor. Watch subjects before or after Start; the cache may
// be nil.
func New(cfg config.MonitorConfig, assessor Assessor, analyzer PortfolioAnalyzer, prices PriceProvider, book PortfolioProvider, cache *calccache.Cache, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		log:      logger.With().Str("component", "risk_monitor").Logger(),
		assessor: assessor,
		analyzer: analyzer,
		prices:   prices,
		book:     book,
		cache:    cache,
		cron:     cron.New(cron.WithSeconds()),
		alerts:   make(chan Alert, cfg.AlertBuffer),
		subjects: make(map[string]struct{}),
		inflight: make(map[string]bool),
	}
}

// Alerts is the pollable alert stream
func (m *Monitor) Alerts() <-chan Alert {
	return m.alerts
}

// Watch adds a symbol to per-position monitoring
func (m *Monitor) Watch(symbol string) {
	m.mu.Lock()
	m.subjects[symbol] = struct{}{}
	count := len(m.subjects)
	m.mu.Unlock()
	metrics.SetMonitoredSubjects(tierPositions, count)
	m.log.Info().Str("symbol", symbol).Msg("Watching subject")
}

// Unwatch removes a symbol; its pending evaluations finish but no further
// ticks pick it up.
func (m *Monitor) Unwatch(symbol string) {
	m.mu.Lock()
	delete(m.subjects, symbol)
	count := len(m.subjects)
	m.mu.Unlock()
	metrics.SetMonitoredSubjects(tierPositions, count)
	m.log.Info().Str("symbol", symbol).Msg("Unwatched subject")
}

// Start registers the cadence tiers and starts the scheduler
func (m *Monitor) Start() error {
	tiers := []struct {
		name     string
		interval time.Duration
		tick     func()
	}{
		{tierPositions, m.cfg.PositionInterval, m.tickPositions},
		{tierPortfolio, m.cfg.PortfolioInterval, m.tickPortfolio},
		{tierHistorical, m.cfg.HistoricalInterval, m.tickHistorical},
	}

	for _, tier := range tiers {
		schedule := "@every " + tier.interval.String()
		if _, err := m.cron.AddFunc(schedule, tier.tick); err != nil {
			return fmt.Errorf("failed to register %s tier: %w", tier.name, err)
		}
		m.log.Info().Str("tier", tier.name).Str("schedule", schedule).Msg("Registered cadence tier")
	}

	m.cron.Start()
	m.log.Info().Msg("Risk monitor started")
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish
func (m *Monitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info().Msg("Risk monitor stopped")
}

// tickPositions re-evaluates every watched symbol. Each subject runs in its
// own time-boxed goroutine guarded by the in-flight map, so a slow evaluation
// never blocks the tick for the others.
func (m *Monitor) tickPositions() {
	for _, symbol := range m.watched() {
		m.dispatch(tierPositions+":"+symbol, func(ctx context.Context) {
			m.evaluatePosition(ctx, symbol)
		})
	}
}

func (m *Monitor) tickPortfolio() {
	m.dispatch(tierPortfolio, m.evaluatePortfolio)
}

func (m *Monitor) tickHistorical() {
	for _, symbol := range m.watched() {
		m.dispatch(tierHistorical+":"+symbol, func(ctx context.Context) {
			m.recalibrate(ctx, symbol)
		})
	}
}

// dispatch runs fn in a goroutine under the evaluation timeout unless the same
// subject is still evaluating from a previous tick.
func (m *Monitor) dispatch(key string, fn func(ctx context.Context)) {
	m.mu.Lock()
	if m.inflight[key] {
		m.mu.Unlock()
		m.log.Debug().Str("subject", key).Msg("Evaluation still in flight, skipping tick")
		return
	}
	m.inflight[key] = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.inflight, key)
			m.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.EvalTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// evaluatePosition checks one symbol for VaR breach and drawdown
func (m *Monitor) evaluatePosition(ctx context.Context, symbol string) {
	assessment, err := m.assessor.AssessSymbol(ctx, symbol, 0.95, risk.MethodHistorical, 1, "")
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", symbol).Msg("Position evaluation failed")
		return
	}

	breachAt := m.cfg.VaRLimit * m.cfg.VaRBreachRatio
	if assessment.VaRPercent >= breachAt {
		m.emit(Alert{
			Kind:      KindVaRBreach,
			SubjectID: symbol,
			Severity:  severityFor(assessment.VaRPercent, breachAt),
			Value:     assessment.VaRPercent,
			Threshold: breachAt,
			Message:   fmt.Sprintf("VaR %.2f%% breaches %.0f%% of the %.2f%% limit", assessment.VaRPercent*100, m.cfg.VaRBreachRatio*100, m.cfg.VaRLimit*100),
		})
	}

	closes, err := m.prices.Closes(symbol, monitorLookback, "")
	if err != nil || len(closes) == 0 {
		return
	}
	dd := formulas.Drawdown(closes)
	if dd != nil && dd.CurrentDrawdown >= m.cfg.DrawdownAlert {
		m.emit(Alert{
			Kind:      KindDrawdownAlert,
			SubjectID: symbol,
			Severity:  severityFor(dd.CurrentDrawdown, m.cfg.DrawdownAlert),
			Value:     dd.CurrentDrawdown,
			Threshold: m.cfg.DrawdownAlert,
			Message:   fmt.Sprintf("drawdown %.2f%% exceeds %.2f%% alert level", dd.CurrentDrawdown*100, m.cfg.DrawdownAlert*100),
		})
	}
}

// evaluatePortfolio checks aggregate VaR and correlation spikes across the
// current snapshot.
func (m *Monitor) evaluatePortfolio(ctx context.Context) {
	positions, total := m.book.Snapshot()
	if len(positions) == 0 {
		return
	}

	returns := make(map[string][]float64, len(positions))
	for _, pos := range positions {
		if ctx.Err() != nil {
			m.log.Warn().Msg("Portfolio evaluation timed out")
			return
		}
		closes, err := m.prices.Closes(pos.Symbol, monitorLookback, "")
		if err != nil || len(closes) < 2 {
			continue
		}
		returns[pos.Symbol] = formulas.Returns(closes)
	}

	report, err := m.analyzer.AnalyzePortfolio(portfolio.Input{
		Positions:  positions,
		TotalValue: total,
		Returns:    returns,
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("Portfolio evaluation failed")
		return
	}

	breachAt := m.cfg.VaRLimit * m.cfg.VaRBreachRatio
	if report.PortfolioVaR >= breachAt {
		m.emit(Alert{
			Kind:      KindVaRBreach,
			SubjectID: "portfolio",
			Severity:  severityFor(report.PortfolioVaR, breachAt),
			Value:     report.PortfolioVaR,
			Threshold: breachAt,
			Message:   fmt.Sprintf("portfolio VaR %.2f%% breaches %.0f%% of the %.2f%% limit", report.PortfolioVaR*100, m.cfg.VaRBreachRatio*100, m.cfg.VaRLimit*100),
		})
	}

	for _, pair := range report.Correlations {
		if math.Abs(pair.Correlation) > m.cfg.CorrelationSpike {
			m.emit(Alert{
				Kind:      KindCorrelationSpike,
				SubjectID: pair.Symbol1 + ":" + pair.Symbol2,
				Severity:  severityFor(math.Abs(pair.Correlation), m.cfg.CorrelationSpike),
				Value:     pair.Correlation,
				Threshold: m.cfg.CorrelationSpike,
				Message:   fmt.Sprintf("correlation %.2f between %s and %s exceeds %.2f", pair.Correlation, pair.Symbol1, pair.Symbol2, m.cfg.CorrelationSpike),
			})
		}
	}
}

// recalibrate refreshes a symbol's full Monte-Carlo assessment and caches it
// for the faster tiers.
func (m *Monitor) recalibrate(ctx context.Context, symbol string) {
	assessment, err := m.assessor.AssessSymbol(ctx, symbol, 0.95, risk.MethodMonteCarlo, 1, "")
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", symbol).Msg("Recalibration failed")
		return
	}

	if m.cache != nil {
		ttl := 2 * m.cfg.HistoricalInterval
		if err := m.cache.Set(cacheNamespace, symbol, assessment, ttl); err != nil {
			m.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache assessment")
		}
	}

	m.log.Debug().
		Str("symbol", symbol).
		Float64("var_pct", assessment.VaRPercent).
		Bool("degraded", assessment.Degraded).
		Msg("Recalibrated assessment")
}

// emit pushes an alert onto the buffered stream. When the buffer is full the
// oldest alert is dropped so fresh breaches are never lost.
func (m *Monitor) emit(alert Alert) {
	alert.ID = uuid.New()
	alert.Timestamp = time.Now().UTC()

	metrics.RecordAlert(string(alert.Kind), string(alert.Severity))
	m.log.Warn().
		Str("kind", string(alert.Kind)).
		Str("severity", string(alert.Severity)).
		Str("subject", alert.SubjectID).
		Float64("value", alert.Value).
		Float64("threshold", alert.Threshold).
		Msg("Risk alert")

	for {
		select {
		case m.alerts <- alert:
			return
		default:
			select {
			case <-m.alerts:
				metrics.RecordDroppedAlert()
			default:
			}
		}
	}
}

func (m *Monitor) watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subjects))
	for s := range m.subjects {
		out = append(out, s)
	}
	return out
}
