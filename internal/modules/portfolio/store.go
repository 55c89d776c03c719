package portfolio

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Store persists the position book so a restarted monitor can resume with the
// same portfolio the collaborators last reported.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a position store on the given database
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: logger.With().Str("repo", "positions").Logger(),
	}
}

// InitSchema creates the positions table if it does not exist
func (s *Store) InitSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			symbol TEXT PRIMARY KEY,
			value REAL NOT NULL,
			entry_price REAL NOT NULL,
			sector TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create positions table: %w", err)
	}
	return nil
}

// Save upserts a position
func (s *Store) Save(pos Position) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (symbol, value, entry_price, sector, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			value = excluded.value,
			entry_price = excluded.entry_price,
			sector = excluded.sector,
			updated_at = excluded.updated_at`,
		strings.ToUpper(strings.TrimSpace(pos.Symbol)), pos.Value, pos.EntryPrice, pos.Sector,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// Delete removes a position, reporting whether it existed
func (s *Store) Delete(symbol string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM positions WHERE symbol = ?",
		strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return false, fmt.Errorf("failed to delete position: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// All returns every stored position
func (s *Store) All() ([]Position, error) {
	rows, err := s.db.Query("SELECT symbol, value, entry_price, sector FROM positions ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var pos Position
		if err := rows.Scan(&pos.Symbol, &pos.Value, &pos.EntryPrice, &pos.Sector); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return positions, nil
}

// Restore loads all stored positions into a portfolio
func (s *Store) Restore(p *Portfolio) error {
	positions, err := s.All()
	if err != nil {
		return err
	}
	for _, pos := range positions {
		p.Upsert(pos)
	}
	s.log.Info().Int("positions", len(positions)).Msg("Restored portfolio from store")
	return nil
}
