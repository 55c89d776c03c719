// Package signal defines the externally-produced ML signal summary consumed by
// the risk engine. The engine never trains or refreshes signals; it only reads
// the confidence/direction summary handed to it.
package signal

import (
	"fmt"

	"github.com/hrninfomeet-wq/riskengine/internal/domain"
)

// Direction is the signalled market direction
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Tier buckets signal confidence for position-sizing enhancement
type Tier string

const (
	TierHigh   Tier = "high"   // confidence > 0.8
	TierMedium Tier = "medium" // 0.6 <= confidence <= 0.8
	TierLow    Tier = "low"    // confidence < 0.6
)

// Summary is a read-only snapshot of an ML signal for one symbol/timeframe
type Summary struct {
	Confidence        float64   `json:"confidence"` // [0,1]
	Direction         Direction `json:"direction"`
	Strength          float64   `json:"strength"` // [0,1]
	EnsembleAgreement bool      `json:"ensemble_agreement"`
}

// Validate checks the summary's ranges
func (s Summary) Validate() error {
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: signal confidence %v outside [0,1]", domain.ErrInvalidParameter, s.Confidence)
	}
	if s.Strength < 0 || s.Strength > 1 {
		return fmt.Errorf("%w: signal strength %v outside [0,1]", domain.ErrInvalidParameter, s.Strength)
	}
	switch s.Direction {
	case Bullish, Bearish, Neutral:
	default:
		return fmt.Errorf("%w: unknown signal direction %q", domain.ErrInvalidParameter, s.Direction)
	}
	return nil
}

// ConfidenceTier returns the tier for the summary's confidence
func (s Summary) ConfidenceTier() Tier {
	switch {
	case s.Confidence > 0.8:
		return TierHigh
	case s.Confidence >= 0.6:
		return TierMedium
	default:
		return TierLow
	}
}
