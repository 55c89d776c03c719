package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RISK_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []float64{0.95, 0.99, 0.999}, cfg.Risk.ConfidenceLevels)
	assert.Equal(t, []int{1, 5, 10, 20}, cfg.Risk.TimeHorizons)
	assert.Equal(t, 20, cfg.Risk.MinimumObservations)
	assert.Equal(t, 0.20, cfg.Risk.FallbackVolatility)
	assert.Equal(t, 10000, cfg.Risk.MonteCarloSims)
	assert.Equal(t, 200*time.Millisecond, cfg.Risk.FastBudget)
	assert.Equal(t, 500*time.Millisecond, cfg.Risk.MonteCarloBudget)

	assert.Equal(t, 0.5, cfg.Kelly.SafetyFactor)
	assert.Equal(t, 0.01, cfg.Kelly.MinFraction)
	assert.Equal(t, 0.25, cfg.Kelly.MaxFraction)

	assert.Equal(t, 14, cfg.Volatility.ATRPeriod)

	assert.Equal(t, 0.15, cfg.Portfolio.MaxPositionSize)
	assert.Equal(t, 5, cfg.Portfolio.MinDiversification)

	assert.Equal(t, time.Second, cfg.Monitor.PositionInterval)
	assert.Equal(t, 60*time.Second, cfg.Monitor.PortfolioInterval)
	assert.Equal(t, 300*time.Second, cfg.Monitor.HistoricalInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RISK_DATA_DIR", t.TempDir())
	t.Setenv("RISK_MC_SIMULATIONS", "500")
	t.Setenv("MONITOR_POSITION_INTERVAL", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Risk.MonteCarloSims)
	assert.Equal(t, 5*time.Second, cfg.Monitor.PositionInterval)
}

func TestValidateRejectsBadKellyBounds(t *testing.T) {
	t.Setenv("RISK_DATA_DIR", t.TempDir())
	t.Setenv("KELLY_MIN_FRACTION", "0.5")
	t.Setenv("KELLY_MAX_FRACTION", "0.25")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kelly bounds")
}

func TestValidateRejectsBadATRPeriod(t *testing.T) {
	t.Setenv("RISK_DATA_DIR", t.TempDir())
	t.Setenv("RISK_ATR_PERIOD", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "atr period")
}

func TestValidConfidence(t *testing.T) {
	r := RiskConfig{ConfidenceLevels: []float64{0.95, 0.99, 0.999}}

	assert.True(t, r.ValidConfidence(0.95))
	assert.True(t, r.ValidConfidence(0.999))
	assert.False(t, r.ValidConfidence(0.90))
}

func TestValidHorizon(t *testing.T) {
	r := RiskConfig{TimeHorizons: []int{1, 5, 10, 20}}

	assert.True(t, r.ValidHorizon(5))
	assert.False(t, r.ValidHorizon(7))
}
