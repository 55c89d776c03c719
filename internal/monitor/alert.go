package monitor

import (
	"time"

	"github.com/google/uuid"
)

// Severity of an alert, derived from how far the metric exceeds its threshold
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Kind of breach the alert reports
type Kind string

const (
	KindVaRBreach        Kind = "var_breach"
	KindCorrelationSpike Kind = "correlation_spike"
	KindDrawdownAlert    Kind = "drawdown_alert"
)

// Alert is one threshold breach. Alerts are handed to an external notification
// collaborator; the monitor does not retry or deduplicate them.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	Severity  Severity  `json:"severity"`
	Kind      Kind      `json:"kind"`
	SubjectID string    `json:"subject_id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
}

// severityFor grades a breach by the ratio of observed value to threshold
func severityFor(value, threshold float64) Severity {
	if threshold <= 0 {
		return SeverityLow
	}
	ratio := value / threshold
	switch {
	case ratio >= 1.5:
		return SeverityCritical
	case ratio >= 1.25:
		return SeverityHigh
	case ratio >= 1.1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
