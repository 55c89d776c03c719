// Package domain holds types and errors shared across the risk engine modules.
package domain

import "errors"

// Sentinel errors for the engine's error taxonomy. Components wrap these with
// fmt.Errorf("...: %w", ...) so callers can classify failures with errors.Is.
var (
	// ErrInvalidParameter indicates malformed or out-of-range inputs.
	// Not recoverable locally; surfaced to the caller.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientData indicates inputs below minimum observation or
	// position counts. Recoverable via documented fallback values.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrComputationTimeout indicates a bounded computation exceeded its
	// latency budget. Recoverable by falling back to a cheaper method.
	ErrComputationTimeout = errors.New("computation timeout")
)
