// Package config provides configuration management for the risk engine.
// Configuration is loaded once at startup and treated as immutable; every
// component receives the values it needs through its constructor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for sqlite databases
	LogLevel string
	Port     int
	DevMode  bool

	Risk       RiskConfig
	Kelly      KellyConfig
	Portfolio  PortfolioConfig
	Controls   ControlsConfig
	Monitor    MonitorConfig
	Volatility VolatilityConfig
}

// RiskConfig holds VaR calculation parameters
type RiskConfig struct {
	ConfidenceLevels    []float64 // Accepted confidence levels
	TimeHorizons        []int     // Accepted horizons in trading days
	MinimumObservations int       // Below this the fallback volatility applies
	FallbackVolatility  float64   // Annualized, used for short series
	MonteCarloSims      int
	MonteCarloSeed      int64         // Fixed seed keeps simulations reproducible
	FastBudget          time.Duration // Historical/parametric latency budget
	MonteCarloBudget    time.Duration
	Parallelism         int // Worker bound for batch symbol evaluation
}

// VolatilityConfig selects the parametric volatility estimator
type VolatilityConfig struct {
	Estimator string  // "ewma" or "lookback"
	EwmaDecay float64 // RiskMetrics decay factor
	Lookback  int     // Observations for the fixed-lookback estimator
	ATRPeriod int     // Average True Range period for OHLC-based estimates
}

// KellyConfig holds position sizing parameters
type KellyConfig struct {
	SafetyFactor         float64 // Half-Kelly discipline
	MinFraction          float64
	MaxFraction          float64
	EnhancementThreshold float64 // Signal confidence required for enhancement
	HighConfidence       float64 // Boundary of the high tier
	HighMultiplier       float64
	MediumMultiplier     float64
	LowMultiplier        float64
	EnsembleBonus        float64
	MultiplierFloor      float64
	MultiplierCeil       float64
}

// PortfolioConfig holds portfolio analysis limits
type PortfolioConfig struct {
	MaxPositionSize     float64 // Fraction of portfolio per position
	MaxSectorExposure   float64
	MaxCorrelation      float64
	MinDiversification  int
	FallbackCorrelation float64 // Used when pairwise data is missing
	RiskFreeRate        float64
}

// ControlsConfig holds stop-loss / take-profit rules
type ControlsConfig struct {
	VolatilityMultiplier  float64 // Stop distance in daily-volatility units
	MinStopPct            float64
	MaxStopPct            float64
	RewardRiskRatio       float64
	SignalOverride        bool    // Confidence-based stop distances replace vol-based
	HighConfidenceStopPct float64
	LowConfidenceStopPct  float64
	TargetExtension       float64 // Take-profit multiplier at high confidence
	TrailingActivation    float64 // Unrealized profit that arms the trailing stop
	TrailingStep          float64 // Ratchet increment
}

// MonitorConfig holds monitoring cadences and alert thresholds
type MonitorConfig struct {
	PositionInterval   time.Duration
	PortfolioInterval  time.Duration
	HistoricalInterval time.Duration
	EvalTimeout        time.Duration // Per-subject evaluation budget
	AlertBuffer        int
	VaRLimit           float64 // Configured VaR ceiling (fraction of value)
	VaRBreachRatio     float64 // Alert at this share of the limit
	CorrelationSpike   float64
	DrawdownAlert      float64
}

// Load reads configuration from environment variables (.env supported)
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("RISK_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("PORT", 8010),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Risk: RiskConfig{
			ConfidenceLevels:    []float64{0.95, 0.99, 0.999},
			TimeHorizons:        []int{1, 5, 10, 20},
			MinimumObservations: getEnvAsInt("RISK_MIN_OBSERVATIONS", 20),
			FallbackVolatility:  getEnvAsFloat("RISK_FALLBACK_VOLATILITY", 0.20),
			MonteCarloSims:      getEnvAsInt("RISK_MC_SIMULATIONS", 10000),
			MonteCarloSeed:      int64(getEnvAsInt("RISK_MC_SEED", 42)),
			FastBudget:          getEnvAsDuration("RISK_FAST_BUDGET", 200*time.Millisecond),
			MonteCarloBudget:    getEnvAsDuration("RISK_MC_BUDGET", 500*time.Millisecond),
			Parallelism:         getEnvAsInt("RISK_PARALLELISM", 4),
		},
		Volatility: VolatilityConfig{
			Estimator: getEnv("RISK_VOL_ESTIMATOR", "ewma"),
			EwmaDecay: getEnvAsFloat("RISK_EWMA_DECAY", 0.94),
			Lookback:  getEnvAsInt("RISK_VOL_LOOKBACK", 30),
			ATRPeriod: getEnvAsInt("RISK_ATR_PERIOD", 14),
		},
		Kelly: KellyConfig{
			SafetyFactor:         0.5,
			MinFraction:          getEnvAsFloat("KELLY_MIN_FRACTION", 0.01),
			MaxFraction:          getEnvAsFloat("KELLY_MAX_FRACTION", 0.25),
			EnhancementThreshold: 0.6,
			HighConfidence:       0.8,
			HighMultiplier:       1.2,
			MediumMultiplier:     1.0,
			LowMultiplier:        0.7,
			EnsembleBonus:        0.1,
			MultiplierFloor:      0.5,
			MultiplierCeil:       1.5,
		},
		Portfolio: PortfolioConfig{
			MaxPositionSize:     getEnvAsFloat("PORTFOLIO_MAX_POSITION", 0.15),
			MaxSectorExposure:   getEnvAsFloat("PORTFOLIO_MAX_SECTOR", 0.30),
			MaxCorrelation:      getEnvAsFloat("PORTFOLIO_MAX_CORRELATION", 0.8),
			MinDiversification:  getEnvAsInt("PORTFOLIO_MIN_DIVERSIFICATION", 5),
			FallbackCorrelation: 0.3,
			RiskFreeRate:        getEnvAsFloat("PORTFOLIO_RISK_FREE_RATE", 0.02),
		},
		Controls: ControlsConfig{
			VolatilityMultiplier:  2.0,
			MinStopPct:            0.01,
			MaxStopPct:            0.05,
			RewardRiskRatio:       2.0,
			SignalOverride:        getEnvAsBool("CONTROLS_SIGNAL_OVERRIDE", true),
			HighConfidenceStopPct: 0.03,
			LowConfidenceStopPct:  0.015,
			TargetExtension:       1.5,
			TrailingActivation:    0.02,
			TrailingStep:          0.005,
		},
		Monitor: MonitorConfig{
			PositionInterval:   getEnvAsDuration("MONITOR_POSITION_INTERVAL", time.Second),
			PortfolioInterval:  getEnvAsDuration("MONITOR_PORTFOLIO_INTERVAL", 60*time.Second),
			HistoricalInterval: getEnvAsDuration("MONITOR_HISTORICAL_INTERVAL", 300*time.Second),
			EvalTimeout:        getEnvAsDuration("MONITOR_EVAL_TIMEOUT", 2*time.Second),
			AlertBuffer:        getEnvAsInt("MONITOR_ALERT_BUFFER", 256),
			VaRLimit:           getEnvAsFloat("MONITOR_VAR_LIMIT", 0.05),
			VaRBreachRatio:     0.8,
			CorrelationSpike:   0.7,
			DrawdownAlert:      0.05,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Risk.MinimumObservations < 2 {
		return fmt.Errorf("minimum observations must be at least 2, got %d", c.Risk.MinimumObservations)
	}
	if c.Risk.FallbackVolatility <= 0 {
		return fmt.Errorf("fallback volatility must be positive, got %v", c.Risk.FallbackVolatility)
	}
	if c.Risk.MonteCarloSims <= 0 {
		return fmt.Errorf("monte carlo simulations must be positive, got %d", c.Risk.MonteCarloSims)
	}
	if c.Risk.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Risk.Parallelism)
	}
	if c.Kelly.MinFraction <= 0 || c.Kelly.MinFraction >= c.Kelly.MaxFraction {
		return fmt.Errorf("kelly bounds invalid: min=%v max=%v", c.Kelly.MinFraction, c.Kelly.MaxFraction)
	}
	if c.Volatility.Estimator != "ewma" && c.Volatility.Estimator != "lookback" {
		return fmt.Errorf("unknown volatility estimator: %s", c.Volatility.Estimator)
	}
	if c.Volatility.EwmaDecay <= 0 || c.Volatility.EwmaDecay >= 1 {
		return fmt.Errorf("ewma decay must be in (0,1), got %v", c.Volatility.EwmaDecay)
	}
	if c.Volatility.ATRPeriod <= 0 {
		return fmt.Errorf("atr period must be positive, got %d", c.Volatility.ATRPeriod)
	}
	if c.Controls.MinStopPct <= 0 || c.Controls.MinStopPct >= c.Controls.MaxStopPct {
		return fmt.Errorf("stop bounds invalid: min=%v max=%v", c.Controls.MinStopPct, c.Controls.MaxStopPct)
	}
	if c.Monitor.AlertBuffer <= 0 {
		return fmt.Errorf("alert buffer must be positive, got %d", c.Monitor.AlertBuffer)
	}
	return nil
}

// ValidConfidence reports whether the given confidence level is configured
func (r RiskConfig) ValidConfidence(confidence float64) bool {
	for _, c := range r.ConfidenceLevels {
		if almostEqual(c, confidence) {
			return true
		}
	}
	return false
}

// ValidHorizon reports whether the given time horizon is configured
func (r RiskConfig) ValidHorizon(days int) bool {
	for _, h := range r.TimeHorizons {
		if h == days {
			return true
		}
	}
	return false
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
