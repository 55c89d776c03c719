// Package history provides the price-history store consumed by the risk
// engine. Reads are bounded by an as-of timestamp so an evaluation never sees
// data from after its own clock.
package history

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Candle is one daily OHLCV observation. Date is an ISO yyyy-mm-dd string,
// which sorts chronologically as text.
type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume *int64  `json:"volume,omitempty"`
}

// Store provides access to historical daily prices
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a price-history store
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: logger.With().Str("component", "history_db").Logger(),
	}
}

// InitSchema creates the daily_prices table if it does not exist
func (s *Store) InitSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume INTEGER,
			PRIMARY KEY (symbol, date)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create daily_prices table: %w", err)
	}
	return nil
}

// Upsert writes candles for a symbol, replacing same-day rows
func (s *Store) Upsert(symbol string, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin price upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("failed to prepare price upsert: %w", err)
	}
	defer stmt.Close()

	symbol = normalize(symbol)
	for _, c := range candles {
		var volume interface{}
		if c.Volume != nil {
			volume = *c.Volume
		}
		if _, err := stmt.Exec(symbol, c.Date, c.Open, c.High, c.Low, c.Close, volume); err != nil {
			return fmt.Errorf("failed to upsert price for %s %s: %w", symbol, c.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price upsert: %w", err)
	}

	s.log.Debug().Str("symbol", symbol).Int("candles", len(candles)).Msg("Upserted daily prices")
	return nil
}

// Closes returns up to limit closing prices for a symbol in chronological
// order, restricted to dates at or before asOf. An empty asOf means no bound.
func (s *Store) Closes(symbol string, limit int, asOf string) ([]float64, error) {
	candles, err := s.Candles(symbol, limit, asOf)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes, nil
}

// Candles returns up to limit candles for a symbol in chronological order,
// restricted to dates at or before asOf.
func (s *Store) Candles(symbol string, limit int, asOf string) ([]Candle, error) {
	if asOf == "" {
		asOf = "9999-12-31"
	}

	// Newest-first with LIMIT picks the most recent window, then the scan
	// order is reversed to chronological.
	rows, err := s.db.Query(`
		SELECT date, open, high, low, close, volume
		FROM daily_prices
		WHERE symbol = ? AND date <= ?
		ORDER BY date DESC
		LIMIT ?`, normalize(symbol), asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var candles []Candle
	for rows.Next() {
		var c Candle
		var volume sql.NullInt64
		if err := rows.Scan(&c.Date, &c.Open, &c.High, &c.Low, &c.Close, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		if volume.Valid {
			c.Volume = &volume.Int64
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// LatestClose returns the most recent close at or before asOf, or nil when no
// data exists.
func (s *Store) LatestClose(symbol string, asOf string) (*float64, error) {
	closes, err := s.Closes(symbol, 1, asOf)
	if err != nil {
		return nil, err
	}
	if len(closes) == 0 {
		return nil, nil
	}
	return &closes[0], nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
