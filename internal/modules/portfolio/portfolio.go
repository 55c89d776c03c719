// Package portfolio holds the position book and portfolio-level risk
// aggregation.
package portfolio

import (
	"sync"
)

// Position is one holding inside a Portfolio. Allocation is derived from the
// book's total value at snapshot time, not stored.
type Position struct {
	Symbol     string  `json:"symbol"`
	Value      float64 `json:"value"`
	EntryPrice float64 `json:"entry_price"`
	Sector     string  `json:"sector,omitempty"`
	Allocation float64 `json:"allocation"` // Filled in by Snapshot
}

// Portfolio is a mutex-guarded position book, unique by symbol. All mutations
// are serialized so aggregate analysis always reads a consistent snapshot.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// New creates an empty portfolio
func New() *Portfolio {
	return &Portfolio{positions: make(map[string]Position)}
}

// Upsert adds or replaces the position for a symbol
func (p *Portfolio) Upsert(pos Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[pos.Symbol] = pos
}

// Remove deletes the position for a symbol, reporting whether it existed
func (p *Portfolio) Remove(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.positions[symbol]
	delete(p.positions, symbol)
	return ok
}

// Get returns the position for a symbol
func (p *Portfolio) Get(symbol string) (Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	return pos, ok
}

// Len returns the number of open positions
func (p *Portfolio) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.positions)
}

// Symbols returns the symbols of all open positions
func (p *Portfolio) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.positions))
	for s := range p.positions {
		out = append(out, s)
	}
	return out
}

// Snapshot returns a consistent copy of all positions with allocations filled
// in, plus the total portfolio value.
func (p *Portfolio) Snapshot() ([]Position, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0.0
	for _, pos := range p.positions {
		total += pos.Value
	}

	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if total > 0 {
			pos.Allocation = pos.Value / total
		}
		out = append(out, pos)
	}
	return out, total
}
