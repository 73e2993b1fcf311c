package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// CreateTables creates the necessary tables if they don't exist
func CreateTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS source_results (
			run_id VARCHAR(64) NOT NULL,
			source VARCHAR(32) NOT NULL,
			query TEXT NOT NULL,
			listings JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, source)
		)`,
		`CREATE TABLE IF NOT EXISTS comparisons (
			id SERIAL PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			query TEXT NOT NULL,
			status VARCHAR(16) NOT NULL CHECK (status IN ('ok', 'no_data', 'no_matches')),
			total_matches INTEGER DEFAULT 0,
			result JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS watches (
			id SERIAL PRIMARY KEY,
			query TEXT NOT NULL,
			target_price DECIMAL(10,2),
			is_active BOOLEAN DEFAULT TRUE,
			last_checked TIMESTAMP,
			last_best_price DECIMAL(10,2),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS watch_alerts (
			id SERIAL PRIMARY KEY,
			watch_id INTEGER REFERENCES watches(id) ON DELETE CASCADE,
			store VARCHAR(32) NOT NULL,
			item_name TEXT NOT NULL,
			price DECIMAL(10,2) NOT NULL,
			triggered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_comparisons_created ON comparisons (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_alerts_watch ON watch_alerts (watch_id, triggered_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
