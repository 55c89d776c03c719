package monitor

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/portfolio"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/risk"
)

type stubAssessor struct {
	mu          sync.Mutex
	assessment  risk.Assessment
	err         error
	calls       int
	lastMethod  risk.Method
	blockUntil  chan struct{} // When set, AssessSymbol waits for ctx or release
}

func (s *stubAssessor) AssessSymbol(ctx context.Context, symbol string, confidence float64, method risk.Method, horizonDays int, asOf string) (risk.Assessment, error) {
	s.mu.Lock()
	s.calls++
	s.lastMethod = method
	block := s.blockUntil
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return risk.Assessment{}, ctx.Err()
		}
	}
	return s.assessment, s.err
}

func (s *stubAssessor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubAnalyzer struct {
	report portfolio.Report
	err    error
}

func (s *stubAnalyzer) AnalyzePortfolio(in portfolio.Input) (portfolio.Report, error) {
	return s.report, s.err
}

type stubPrices struct {
	series map[string][]float64
}

func (s *stubPrices) Closes(symbol string, limit int, asOf string) ([]float64, error) {
	return s.series[symbol], nil
}

type stubBook struct {
	positions []portfolio.Position
	total     float64
}

func (s *stubBook) Snapshot() ([]portfolio.Position, float64) {
	return s.positions, s.total
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		PositionInterval:   time.Second,
		PortfolioInterval:  60 * time.Second,
		HistoricalInterval: 300 * time.Second,
		EvalTimeout:        time.Second,
		AlertBuffer:        4,
		VaRLimit:           0.05,
		VaRBreachRatio:     0.8,
		CorrelationSpike:   0.7,
		DrawdownAlert:      0.05,
	}
}

func newTestMonitor(cfg config.MonitorConfig, assessor Assessor, analyzer PortfolioAnalyzer, prices PriceProvider, book PortfolioProvider) *Monitor {
	return New(cfg, assessor, analyzer, prices, book, nil, zerolog.Nop())
}

func TestSeverityMapping(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  Severity
	}{
		{"just at threshold", 0.040, SeverityLow},
		{"ten percent over", 0.045, SeverityMedium},
		{"quarter over", 0.051, SeverityHigh},
		{"half over", 0.061, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, severityFor(tt.value, 0.04))
		})
	}
}

func TestVaRBreachEmitsAlert(t *testing.T) {
	assessor := &stubAssessor{assessment: risk.Assessment{VaRPercent: 0.045}}
	m := newTestMonitor(testMonitorConfig(), assessor, &stubAnalyzer{}, &stubPrices{}, &stubBook{})

	// Breach threshold is 0.8 x 5% = 4%; 4.5% breaches at medium severity.
	m.evaluatePosition(context.Background(), "AAPL")

	select {
	case alert := <-m.Alerts():
		assert.Equal(t, KindVaRBreach, alert.Kind)
		assert.Equal(t, "AAPL", alert.SubjectID)
		assert.Equal(t, SeverityMedium, alert.Severity)
		assert.InDelta(t, 0.04, alert.Threshold, 1e-9)
		assert.NotZero(t, alert.ID)
		assert.False(t, alert.Timestamp.IsZero())
	default:
		t.Fatal("expected a VaR breach alert")
	}
}

func TestNoAlertBelowThreshold(t *testing.T) {
	assessor := &stubAssessor{assessment: risk.Assessment{VaRPercent: 0.02}}
	m := newTestMonitor(testMonitorConfig(), assessor, &stubAnalyzer{}, &stubPrices{}, &stubBook{})

	m.evaluatePosition(context.Background(), "AAPL")

	select {
	case alert := <-m.Alerts():
		t.Fatalf("unexpected alert: %+v", alert)
	default:
	}
}

func TestDrawdownAlert(t *testing.T) {
	assessor := &stubAssessor{assessment: risk.Assessment{VaRPercent: 0.0}}
	prices := &stubPrices{series: map[string][]float64{
		// Peak at 110, now at 99: a 10% drawdown.
		"AAPL": {100, 105, 110, 104, 99},
	}}
	m := newTestMonitor(testMonitorConfig(), assessor, &stubAnalyzer{}, prices, &stubBook{})

	m.evaluatePosition(context.Background(), "AAPL")

	select {
	case alert := <-m.Alerts():
		assert.Equal(t, KindDrawdownAlert, alert.Kind)
		assert.InDelta(t, 0.1, alert.Value, 1e-9)
		assert.Equal(t, SeverityCritical, alert.Severity, "10% against a 5% threshold is double")
	default:
		t.Fatal("expected a drawdown alert")
	}
}

func TestPortfolioCorrelationSpike(t *testing.T) {
	analyzer := &stubAnalyzer{report: portfolio.Report{
		PortfolioVaR: 0.01,
		Correlations: []portfolio.CorrelationPair{
			{Symbol1: "AAPL", Symbol2: "MSFT", Correlation: 0.92},
			{Symbol1: "AAPL", Symbol2: "XOM", Correlation: 0.1},
		},
	}}
	book := &stubBook{
		positions: []portfolio.Position{{Symbol: "AAPL"}, {Symbol: "MSFT"}, {Symbol: "XOM"}},
		total:     100000,
	}
	m := newTestMonitor(testMonitorConfig(), &stubAssessor{}, analyzer, &stubPrices{}, book)

	m.evaluatePortfolio(context.Background())

	select {
	case alert := <-m.Alerts():
		assert.Equal(t, KindCorrelationSpike, alert.Kind)
		assert.Equal(t, "AAPL:MSFT", alert.SubjectID)
		assert.InDelta(t, 0.92, alert.Value, 1e-9)
	default:
		t.Fatal("expected a correlation spike alert")
	}

	// The 0.1 pair stays quiet.
	select {
	case alert := <-m.Alerts():
		t.Fatalf("unexpected second alert: %+v", alert)
	default:
	}
}

func TestPortfolioEmptySnapshotIsQuiet(t *testing.T) {
	m := newTestMonitor(testMonitorConfig(), &stubAssessor{}, &stubAnalyzer{}, &stubPrices{}, &stubBook{})

	m.evaluatePortfolio(context.Background())

	select {
	case alert := <-m.Alerts():
		t.Fatalf("unexpected alert: %+v", alert)
	default:
	}
}

func TestEmitOverflowDropsOldest(t *testing.T) {
	cfg := testMonitorConfig()
	cfg.AlertBuffer = 2
	m := newTestMonitor(cfg, &stubAssessor{}, &stubAnalyzer{}, &stubPrices{}, &stubBook{})

	m.emit(Alert{Kind: KindVaRBreach, SubjectID: "first"})
	m.emit(Alert{Kind: KindVaRBreach, SubjectID: "second"})
	m.emit(Alert{Kind: KindVaRBreach, SubjectID: "third"})

	got := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case alert := <-m.Alerts():
			got = append(got, alert.SubjectID)
		default:
			t.Fatal("expected a buffered alert")
		}
	}
	assert.Equal(t, []string{"second", "third"}, got, "oldest alert is discarded on overflow")
}

func TestDispatchSkipsInFlightSubject(t *testing.T) {
	release := make(chan struct{})
	assessor := &stubAssessor{blockUntil: release}
	m := newTestMonitor(testMonitorConfig(), assessor, &stubAnalyzer{}, &stubPrices{}, &stubBook{})
	m.Watch("AAPL")

	m.tickPositions()
	// Second tick while the first evaluation is still blocked.
	m.tickPositions()
	close(release)

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.inflight) == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, assessor.callCount(), "overlapping tick must not re-enter the subject")
}

func TestWatchUnwatch(t *testing.T) {
	m := newTestMonitor(testMonitorConfig(), &stubAssessor{}, &stubAnalyzer{}, &stubPrices{}, &stubBook{})

	m.Watch("AAPL")
	m.Watch("MSFT")
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, m.watched())

	m.Unwatch("AAPL")
	assert.Equal(t, []string{"MSFT"}, m.watched())
}

func TestRecalibrateUsesMonteCarlo(t *testing.T) {
	assessor := &stubAssessor{assessment: risk.Assessment{VaRPercent: 0.03}}
	m := newTestMonitor(testMonitorConfig(), assessor, &stubAnalyzer{}, &stubPrices{}, &stubBook{})

	m.recalibrate(context.Background(), "AAPL")

	assessor.mu.Lock()
	defer assessor.mu.Unlock()
	assert.Equal(t, risk.MethodMonteCarlo, assessor.lastMethod)
}

func TestStartStop(t *testing.T) {
	m := newTestMonitor(testMonitorConfig(), &stubAssessor{}, &stubAnalyzer{}, &stubPrices{}, &stubBook{})
	require.NoError(t, m.Start())
	m.Stop()
}

func TestSeverityForZeroThreshold(t *testing.T) {
	assert.Equal(t, SeverityLow, severityFor(math.Inf(1), 0))
}
