// Package sizing implements Kelly-criterion position sizing with
// signal-confidence adjustment.
package sizing

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/domain"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/signal"
)

// Input holds the parameters for one sizing decision
type Input struct {
	Symbol          string          `json:"symbol"`
	EntryPrice      float64         `json:"entry_price"`
	StopLoss        float64         `json:"stop_loss"`
	TakeProfit      float64         `json:"take_profit"`
	WinProbability  float64         `json:"win_probability"`
	Signal          *signal.Summary `json:"signal,omitempty"`
	PortfolioValue  float64         `json:"portfolio_value"`
	MaxRiskPerTrade float64         `json:"max_risk_per_trade"`
}

// Result is the outcome of one sizing decision
type Result struct {
	Symbol         string  `json:"symbol"`
	KellyFraction  float64 `json:"kelly_fraction"`  // Raw Kelly; negative for losing setups
	FinalFraction  float64 `json:"final_fraction"`  // After safety factor, signal multiplier, clamps
	Multiplier     float64 `json:"multiplier"`      // Signal multiplier actually applied
	DollarAmount   float64 `json:"dollar_amount"`
	Shares         int64   `json:"shares"`
	PositionPct    float64 `json:"position_pct"` // DollarAmount as % of portfolio
	MLEnhanced     bool    `json:"ml_enhancement_applied"`
	RiskCapped     bool    `json:"risk_capped"` // Max-risk constraint bound the dollar amount
	RewardToRisk   float64 `json:"reward_to_risk"`
}

// Sizer computes position sizes from risk parameters and an optional signal
type Sizer struct {
	cfg config.KellyConfig
	log zerolog.Logger
}

// NewSizer creates a new position sizer
func NewSizer(cfg config.KellyConfig, log zerolog.Logger) *Sizer {
	return &Sizer{
		cfg: cfg,
		log: log.With().Str("component", "position_sizer").Logger(),
	}
}

// Size computes the position size for the given inputs.
//
// Kelly fraction f = p - (1-p)/R with reward:risk ratio R; negative fractions
// clamp to the configured minimum rather than zero, so valid setups always
// receive at least an exploratory size. Half-Kelly scaling and the
// signal-confidence multiplier are applied before the final clamp.
func (s *Sizer) Size(in Input) (Result, error) {
	if err := s.validate(in); err != nil {
		return Result{}, err
	}

	reward := math.Abs(in.TakeProfit - in.EntryPrice)
	riskDistance := math.Abs(in.EntryPrice - in.StopLoss)
	rewardToRisk := reward / riskDistance

	kelly := in.WinProbability - (1-in.WinProbability)/rewardToRisk
	floored := kelly
	if floored < s.cfg.MinFraction {
		floored = s.cfg.MinFraction
	}

	scaled := floored * s.cfg.SafetyFactor

	multiplier := 1.0
	enhanced := false
	if in.Signal != nil {
		multiplier = s.signalMultiplier(*in.Signal)
		enhanced = in.Signal.Confidence >= s.cfg.EnhancementThreshold
	}

	finalFraction := clamp(scaled*multiplier, s.cfg.MinFraction, s.cfg.MaxFraction)

	dollarAmount := finalFraction * in.PortfolioValue
	riskCapped := false
	if riskCap := in.MaxRiskPerTrade * in.PortfolioValue; dollarAmount > riskCap {
		dollarAmount = riskCap
		riskCapped = true
	}

	shares := int64(math.Floor(dollarAmount / in.EntryPrice))

	result := Result{
		Symbol:        in.Symbol,
		KellyFraction: kelly,
		FinalFraction: finalFraction,
		Multiplier:    multiplier,
		DollarAmount:  dollarAmount,
		Shares:        shares,
		PositionPct:   dollarAmount / in.PortfolioValue * 100,
		MLEnhanced:    enhanced,
		RiskCapped:    riskCapped,
		RewardToRisk:  rewardToRisk,
	}

	s.log.Debug().
		Str("symbol", in.Symbol).
		Float64("kelly", kelly).
		Float64("final_fraction", finalFraction).
		Float64("dollar_amount", dollarAmount).
		Bool("ml_enhanced", enhanced).
		Bool("risk_capped", riskCapped).
		Msg("Sized position")

	return result, nil
}

// signalMultiplier derives the confidence-tier multiplier plus the ensemble
// agreement bonus, clamped to the configured range.
func (s *Sizer) signalMultiplier(sig signal.Summary) float64 {
	var m float64
	switch sig.ConfidenceTier() {
	case signal.TierHigh:
		m = s.cfg.HighMultiplier
	case signal.TierMedium:
		m = s.cfg.MediumMultiplier
	default:
		m = s.cfg.LowMultiplier
	}

	if sig.EnsembleAgreement {
		m += s.cfg.EnsembleBonus
	}

	return clamp(m, s.cfg.MultiplierFloor, s.cfg.MultiplierCeil)
}

func (s *Sizer) validate(in Input) error {
	if in.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive, got %v", domain.ErrInvalidParameter, in.EntryPrice)
	}
	if in.WinProbability < 0 || in.WinProbability > 1 {
		return fmt.Errorf("%w: win probability %v outside [0,1]", domain.ErrInvalidParameter, in.WinProbability)
	}
	if in.PortfolioValue <= 0 {
		return fmt.Errorf("%w: portfolio value must be positive, got %v", domain.ErrInvalidParameter, in.PortfolioValue)
	}
	if in.MaxRiskPerTrade <= 0 || in.MaxRiskPerTrade > 1 {
		return fmt.Errorf("%w: max risk per trade %v outside (0,1]", domain.ErrInvalidParameter, in.MaxRiskPerTrade)
	}
	if in.StopLoss == in.EntryPrice || in.TakeProfit == in.EntryPrice {
		return fmt.Errorf("%w: stop loss and take profit must differ from entry price", domain.ErrInvalidParameter)
	}

	// Stop and target must be on opposite sides of entry for the implied
	// direction (long: stop below, target above; short: mirrored).
	long := in.TakeProfit > in.EntryPrice
	if long && in.StopLoss >= in.EntryPrice {
		return fmt.Errorf("%w: stop loss %v must be below entry %v for a long setup", domain.ErrInvalidParameter, in.StopLoss, in.EntryPrice)
	}
	if !long && in.StopLoss <= in.EntryPrice {
		return fmt.Errorf("%w: stop loss %v must be above entry %v for a short setup", domain.ErrInvalidParameter, in.StopLoss, in.EntryPrice)
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
