package controls

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/domain"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/signal"
)

func testController() *Controller {
	return New(config.ControlsConfig{
		VolatilityMultiplier:  2.0,
		MinStopPct:            0.01,
		MaxStopPct:            0.05,
		RewardRiskRatio:       2.0,
		SignalOverride:        true,
		HighConfidenceStopPct: 0.03,
		LowConfidenceStopPct:  0.015,
		TargetExtension:       1.5,
		TrailingActivation:    0.02,
		TrailingStep:          0.005,
	}, zerolog.Nop())
}

func TestComputeLongVolatilityStop(t *testing.T) {
	c := testController()

	out, err := c.Compute(Input{
		Symbol:          "AAPL",
		Direction:       Long,
		EntryPrice:      100,
		CurrentPrice:    100,
		DailyVolatility: 0.012, // 2.0 x 1.2% = 2.4% stop distance
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.024, out.StopDistancePct, 1e-9)
	assert.InDelta(t, 97.6, out.StopLoss, 1e-9)
	assert.InDelta(t, 104.8, out.TakeProfit, 1e-9, "2:1 reward:risk")
	assert.Less(t, out.StopLoss, 100.0)
	assert.Greater(t, out.TakeProfit, 100.0)
	assert.False(t, out.TrailingActive)
	assert.False(t, out.SignalAdjusted)
}

func TestComputeStopDistanceClamped(t *testing.T) {
	c := testController()

	tests := []struct {
		name     string
		dailyVol float64
		wantDist float64
	}{
		{"calm market floors at 1%", 0.001, 0.01},
		{"volatile market caps at 5%", 0.08, 0.05},
		{"mid-band passes through", 0.015, 0.03},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Compute(Input{
				Symbol: "AAPL", Direction: Long,
				EntryPrice: 100, CurrentPrice: 100,
				DailyVolatility: tt.dailyVol,
			})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantDist, out.StopDistancePct, 1e-9)
		})
	}
}

func TestComputeSignalOverride(t *testing.T) {
	c := testController()

	base := Input{
		Symbol: "AAPL", Direction: Long,
		EntryPrice: 100, CurrentPrice: 100,
		DailyVolatility: 0.012,
	}

	high := base
	high.Signal = &signal.Summary{Confidence: 0.9, Direction: signal.Bullish, Strength: 0.8}
	out, err := c.Compute(high)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, out.StopDistancePct, 1e-9, "high confidence widens the stop")
	assert.True(t, out.SignalAdjusted)
	// High confidence also extends the target: 2.0 x 3% x 1.5 = 9%.
	assert.InDelta(t, 109.0, out.TakeProfit, 1e-9)

	low := base
	low.Signal = &signal.Summary{Confidence: 0.4, Direction: signal.Bullish, Strength: 0.3}
	out, err = c.Compute(low)
	require.NoError(t, err)
	assert.InDelta(t, 0.015, out.StopDistancePct, 1e-9, "low confidence tightens the stop")
	assert.True(t, out.SignalAdjusted)
	assert.InDelta(t, 103.0, out.TakeProfit, 1e-9)

	medium := base
	medium.Signal = &signal.Summary{Confidence: 0.7, Direction: signal.Bullish, Strength: 0.5}
	out, err = c.Compute(medium)
	require.NoError(t, err)
	assert.InDelta(t, 0.024, out.StopDistancePct, 1e-9, "medium confidence keeps the volatility stop")
	assert.False(t, out.SignalAdjusted)
}

func TestComputeShortMirrorsLong(t *testing.T) {
	c := testController()

	out, err := c.Compute(Input{
		Symbol: "AAPL", Direction: Short,
		EntryPrice: 100, CurrentPrice: 100,
		DailyVolatility: 0.012,
	})
	require.NoError(t, err)

	assert.InDelta(t, 102.4, out.StopLoss, 1e-9)
	assert.InDelta(t, 95.2, out.TakeProfit, 1e-9)
	assert.Greater(t, out.StopLoss, 100.0)
	assert.Less(t, out.TakeProfit, 100.0)
}

func TestTrailingActivation(t *testing.T) {
	c := testController()

	base := Input{
		Symbol: "AAPL", Direction: Long,
		EntryPrice: 100, DailyVolatility: 0.005,
	}

	// Below the 2% activation threshold nothing arms.
	in := base
	in.CurrentPrice = 101
	out, err := c.Compute(in)
	require.NoError(t, err)
	assert.False(t, out.TrailingActive)
	assert.Zero(t, out.TrailingStop)

	// Above the threshold trailing arms.
	in.CurrentPrice = 103
	out, err = c.Compute(in)
	require.NoError(t, err)
	assert.True(t, out.TrailingActive)
	assert.Greater(t, out.TrailingStop, out.StopLoss)
}

func TestTrailingRatchetNeverLoosens(t *testing.T) {
	c := testController()

	in := Input{
		Symbol: "AAPL", Direction: Long,
		EntryPrice: 100, DailyVolatility: 0.005,
	}

	prev := 0.0
	active := false
	for _, price := range []float64{103, 104, 105, 104, 103, 106, 105} {
		in.CurrentPrice = price
		in.TrailingActive = active
		in.PrevTrailingStop = prev

		out, err := c.Compute(in)
		require.NoError(t, err)
		require.True(t, out.TrailingActive, "trailing stays armed once activated")
		assert.GreaterOrEqual(t, out.TrailingStop, prev, "price pullback at %v must not lower the stop", price)

		prev = out.TrailingStop
		active = out.TrailingActive
	}

	assert.Greater(t, prev, 100.0, "after the advance the stop is above entry")
}

func TestTrailingShortRatchetsDownward(t *testing.T) {
	c := testController()

	in := Input{
		Symbol: "AAPL", Direction: Short,
		EntryPrice: 100, DailyVolatility: 0.005,
	}

	prev := 0.0
	active := false
	for _, price := range []float64{97, 96, 95, 96, 94} {
		in.CurrentPrice = price
		in.TrailingActive = active
		in.PrevTrailingStop = prev

		out, err := c.Compute(in)
		require.NoError(t, err)
		require.True(t, out.TrailingActive)
		if prev > 0 {
			assert.LessOrEqual(t, out.TrailingStop, prev)
		}

		prev = out.TrailingStop
		active = out.TrailingActive
	}

	assert.Less(t, prev, 100.0)
}

func TestComputeInvalidInputs(t *testing.T) {
	c := testController()

	tests := []struct {
		name string
		in   Input
	}{
		{"unknown direction", Input{Direction: "sideways", EntryPrice: 100, CurrentPrice: 100}},
		{"zero entry", Input{Direction: Long, EntryPrice: 0, CurrentPrice: 100}},
		{"zero current price", Input{Direction: Long, EntryPrice: 100, CurrentPrice: 0}},
		{"negative volatility", Input{Direction: Long, EntryPrice: 100, CurrentPrice: 100, DailyVolatility: -0.01}},
		{"invalid signal", Input{Direction: Long, EntryPrice: 100, CurrentPrice: 100,
			Signal: &signal.Summary{Confidence: 1.5, Direction: signal.Bullish}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compute(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
		})
	}
}
