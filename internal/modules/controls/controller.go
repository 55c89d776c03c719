// Package controls derives stop-loss, take-profit and trailing-stop levels
// from current volatility and signal confidence. The controller is a pure
// function of its input; callers persist the resulting ControlSet and pass the
// previous trailing level back in so ratcheting stays monotonic.
package controls

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/domain"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/signal"
)

// Direction of the open position
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Input carries the per-position state the controller needs
type Input struct {
	Symbol           string
	Direction        Direction
	EntryPrice       float64
	CurrentPrice     float64
	DailyVolatility  float64         // Daily return volatility as a fraction
	Signal           *signal.Summary // Optional; nil means no override
	TrailingActive   bool            // From the previous ControlSet
	PrevTrailingStop float64         // 0 when trailing has never armed
}

// ControlSet is the risk-control state for one open position
type ControlSet struct {
	Symbol          string  `json:"symbol"`
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	StopDistancePct float64 `json:"stop_distance_pct"`
	TrailingActive  bool    `json:"trailing_active"`
	TrailingStop    float64 `json:"trailing_stop,omitempty"`
	SignalAdjusted  bool    `json:"signal_adjusted"`
}

// Controller computes risk-control levels from configuration
type Controller struct {
	cfg config.ControlsConfig
	log zerolog.Logger
}

// New creates a risk controller
func New(cfg config.ControlsConfig, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg: cfg,
		log: logger.With().Str("component", "risk_controller").Logger(),
	}
}

// Compute derives the current ControlSet for a position. Stop distance is
// volatility-scaled and clamped to the configured band; a confident signal can
// override it when SignalOverride is enabled. Take-profit sits at the
// configured reward:risk ratio from the stop, extended at high confidence.
func (c *Controller) Compute(in Input) (ControlSet, error) {
	if err := c.validate(in); err != nil {
		return ControlSet{}, err
	}

	stopDist := clamp(c.cfg.VolatilityMultiplier*in.DailyVolatility, c.cfg.MinStopPct, c.cfg.MaxStopPct)

	signalAdjusted := false
	highConfidence := false
	if in.Signal != nil {
		tier := in.Signal.ConfidenceTier()
		highConfidence = tier == signal.TierHigh
		if c.cfg.SignalOverride {
			switch tier {
			case signal.TierHigh:
				stopDist = c.cfg.HighConfidenceStopPct
				signalAdjusted = true
			case signal.TierLow:
				stopDist = c.cfg.LowConfidenceStopPct
				signalAdjusted = true
			}
		}
	}

	targetDist := c.cfg.RewardRiskRatio * stopDist
	if highConfidence {
		targetDist *= c.cfg.TargetExtension
	}

	out := ControlSet{
		Symbol:          in.Symbol,
		StopDistancePct: stopDist,
		SignalAdjusted:  signalAdjusted,
	}

	switch in.Direction {
	case Long:
		out.StopLoss = in.EntryPrice * (1 - stopDist)
		out.TakeProfit = in.EntryPrice * (1 + targetDist)
	case Short:
		out.StopLoss = in.EntryPrice * (1 + stopDist)
		out.TakeProfit = in.EntryPrice * (1 - targetDist)
	}

	out.TrailingActive, out.TrailingStop = c.trail(in, stopDist, out.StopLoss)

	c.log.Debug().
		Str("symbol", in.Symbol).
		Str("direction", string(in.Direction)).
		Float64("stop_loss", out.StopLoss).
		Float64("take_profit", out.TakeProfit).
		Bool("trailing", out.TrailingActive).
		Msg("Computed risk controls")

	return out, nil
}

// trail arms the trailing stop once unrealized profit crosses the activation
// threshold and ratchets it toward price in fixed steps of the entry price.
// The previous level is a floor (long) or ceiling (short): trailing never
// loosens.
func (c *Controller) trail(in Input, stopDist, stopLoss float64) (bool, float64) {
	var profit float64
	switch in.Direction {
	case Long:
		profit = (in.CurrentPrice - in.EntryPrice) / in.EntryPrice
	case Short:
		profit = (in.EntryPrice - in.CurrentPrice) / in.EntryPrice
	}

	active := in.TrailingActive || profit >= c.cfg.TrailingActivation
	if !active {
		return false, 0
	}

	var level float64
	if in.Direction == Long {
		raw := in.CurrentPrice * (1 - stopDist)
		steps := math.Floor((raw/in.EntryPrice - 1) / c.cfg.TrailingStep)
		level = in.EntryPrice * (1 + steps*c.cfg.TrailingStep)
		if level < stopLoss {
			level = stopLoss
		}
		if in.PrevTrailingStop > 0 && in.PrevTrailingStop > level {
			level = in.PrevTrailingStop
		}
	} else {
		raw := in.CurrentPrice * (1 + stopDist)
		steps := math.Ceil((raw/in.EntryPrice - 1) / c.cfg.TrailingStep)
		level = in.EntryPrice * (1 + steps*c.cfg.TrailingStep)
		if level > stopLoss {
			level = stopLoss
		}
		if in.PrevTrailingStop > 0 && in.PrevTrailingStop < level {
			level = in.PrevTrailingStop
		}
	}

	return true, level
}

func (c *Controller) validate(in Input) error {
	if in.Direction != Long && in.Direction != Short {
		return fmt.Errorf("%w: direction must be long or short, got %q", domain.ErrInvalidParameter, in.Direction)
	}
	if in.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive, got %v", domain.ErrInvalidParameter, in.EntryPrice)
	}
	if in.CurrentPrice <= 0 {
		return fmt.Errorf("%w: current price must be positive, got %v", domain.ErrInvalidParameter, in.CurrentPrice)
	}
	if in.DailyVolatility < 0 || math.IsNaN(in.DailyVolatility) {
		return fmt.Errorf("%w: daily volatility must be non-negative, got %v", domain.ErrInvalidParameter, in.DailyVolatility)
	}
	if in.Signal != nil {
		if err := in.Signal.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
