package signal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrninfomeet-wq/riskengine/internal/domain"
)

func TestValidate(t *testing.T) {
	valid := Summary{Confidence: 0.75, Direction: Bullish, Strength: 0.6}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		s    Summary
	}{
		{"confidence above one", Summary{Confidence: 1.2, Direction: Bullish}},
		{"negative confidence", Summary{Confidence: -0.1, Direction: Bearish}},
		{"strength above one", Summary{Confidence: 0.5, Direction: Neutral, Strength: 1.5}},
		{"unknown direction", Summary{Confidence: 0.5, Direction: "up"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
		})
	}
}

func TestConfidenceTier(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Tier
	}{
		{0.95, TierHigh},
		{0.81, TierHigh},
		{0.80, TierMedium},
		{0.60, TierMedium},
		{0.59, TierLow},
		{0.0, TierLow},
	}
	for _, tt := range tests {
		s := Summary{Confidence: tt.confidence, Direction: Bullish}
		assert.Equal(t, tt.want, s.ConfidenceTier(), "confidence %v", tt.confidence)
	}
}
