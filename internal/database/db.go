// Package database provides sqlite connection management for the engine's
// collaborator stores (price history, positions, calculation cache).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps a sqlite connection with WAL-mode defaults suitable for a
// long-running service.
type DB struct {
	conn *sql.DB
	path string
	name string
}

// Config holds database configuration
type Config struct {
	Path string
	Name string // Friendly name for logging (e.g., "history", "positions")
}

// New opens a sqlite database, creating parent directories as needed.
// file: URIs (used for in-memory databases in tests) are passed through as-is.
func New(cfg Config) (*DB, error) {
	path := cfg.Path
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = absPath
	}

	conn, err := sql.Open("sqlite", connString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	// Single writer, modest reader pool. sqlite serializes writes anyway.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: path, name: cfg.Name}, nil
}

func connString(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
}

// Conn returns the underlying *sql.DB
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database's friendly name
func (db *DB) Name() string {
	return db.name
}

// Close closes the database connection
func (db *DB) Close() error {
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database %s: %w", db.name, err)
	}
	return nil
}
