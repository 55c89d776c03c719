package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hrninfomeet-wq/riskengine/internal/domain"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/controls"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/portfolio"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/risk"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/signal"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/sizing"
	"github.com/hrninfomeet-wq/riskengine/internal/monitor"
)

const maxAlertsPerPoll = 100

type varRequest struct {
	Symbol          string    `json:"symbol,omitempty"`
	Prices          []float64 `json:"prices,omitempty"`
	ConfidenceLevel float64   `json:"confidence_level"`
	Method          string    `json:"method"`
	TimeHorizonDays int       `json:"time_horizon_days"`
}

// handleVaR computes VaR/CVaR for a supplied price series, or for a symbol's
// stored history when no prices are given.
func (s *Server) handleVaR(w http.ResponseWriter, r *http.Request) {
	var req varRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	var (
		assessment risk.Assessment
		err        error
	)
	if len(req.Prices) > 0 {
		assessment, err = s.engine.ComputeVaR(r.Context(), req.Prices, req.ConfidenceLevel, risk.Method(req.Method), req.TimeHorizonDays)
	} else if req.Symbol != "" {
		assessment, err = s.engine.AssessSymbol(r.Context(), req.Symbol, req.ConfidenceLevel, risk.Method(req.Method), req.TimeHorizonDays, "")
	} else {
		s.writeError(w, http.StatusBadRequest, "either prices or symbol is required")
		return
	}
	if err != nil {
		s.writeRiskError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) handlePositionSize(w http.ResponseWriter, r *http.Request) {
	var req sizing.Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.engine.SizePosition(req)
	if err != nil {
		s.writeRiskError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

type analyzeRequest struct {
	Positions []struct {
		Symbol     string  `json:"symbol"`
		Value      float64 `json:"value"`
		EntryPrice float64 `json:"entry_price"`
		Sector     string  `json:"sector,omitempty"`
	} `json:"positions"`
	Returns          map[string][]float64 `json:"returns,omitempty"`
	PortfolioReturns []float64            `json:"portfolio_returns,omitempty"`
	Confidence       float64              `json:"confidence_level,omitempty"`
}

func (s *Server) handlePortfolioAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	// Allocations derive from the book, never from the caller.
	book := portfolio.New()
	for _, p := range req.Positions {
		book.Upsert(portfolio.Position{
			Symbol:     p.Symbol,
			Value:      p.Value,
			EntryPrice: p.EntryPrice,
			Sector:     p.Sector,
		})
	}
	positions, total := book.Snapshot()

	report, err := s.engine.AnalyzePortfolio(portfolio.Input{
		Positions:        positions,
		TotalValue:       total,
		Returns:          req.Returns,
		PortfolioReturns: req.PortfolioReturns,
		Confidence:       req.Confidence,
	})
	if err != nil {
		s.writeRiskError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

type controlsRequest struct {
	Symbol           string          `json:"symbol"`
	Direction        string          `json:"direction"`
	EntryPrice       float64         `json:"entry_price"`
	CurrentPrice     float64         `json:"current_price"`
	DailyVolatility  float64         `json:"daily_volatility"`
	Signal           *signal.Summary `json:"signal,omitempty"`
	TrailingActive   bool            `json:"trailing_active,omitempty"`
	PrevTrailingStop float64         `json:"prev_trailing_stop,omitempty"`
}

func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	var req controlsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	// A zero volatility with a known symbol means estimate it from stored
	// candle history.
	if req.DailyVolatility == 0 && req.Symbol != "" {
		vol, err := s.engine.SymbolVolatility(req.Symbol, "")
		if err != nil {
			s.writeRiskError(w, err)
			return
		}
		req.DailyVolatility = vol
	}

	set, err := s.engine.ComputeRiskControls(controls.Input{
		Symbol:           req.Symbol,
		Direction:        controls.Direction(req.Direction),
		EntryPrice:       req.EntryPrice,
		CurrentPrice:     req.CurrentPrice,
		DailyVolatility:  req.DailyVolatility,
		Signal:           req.Signal,
		TrailingActive:   req.TrailingActive,
		PrevTrailingStop: req.PrevTrailingStop,
	})
	if err != nil {
		s.writeRiskError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, set)
}

// handleAlerts drains pending alerts from the monitor. This is the pollable
// side of the alert stream for notification collaborators.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := maxAlertsPerPoll
	if raw := r.URL.Query().Get("max"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	alerts := make([]monitor.Alert, 0, limit)
	for len(alerts) < limit {
		select {
		case alert := <-s.monitor.Alerts():
			alerts = append(alerts, alert)
		default:
			s.writeJSON(w, http.StatusOK, map[string]interface{}{
				"alerts": alerts,
				"count":  len(alerts),
			})
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memUsed := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		memUsed = memStat.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "riskengine",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuAvg,
		"memory_percent": memUsed,
	})
}

// writeRiskError maps the engine's structured errors onto HTTP status codes
func (s *Server) writeRiskError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrComputationTimeout):
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
