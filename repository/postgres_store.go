package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pricecompare/models"

	"github.com/charmbracelet/log"
)

// PostgresStore keeps result sets in the source_results table
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

func NewPostgresStore(db *sql.DB, logger *log.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Put upserts the set for (run, source)
func (s *PostgresStore) Put(ctx context.Context, set models.SourceResultSet) error {
	if set.Listings == nil {
		set.Listings = []models.Listing{}
	}
	listings, err := json.Marshal(set.Listings)
	if err != nil {
		return fmt.Errorf("failed to encode listings: %w", err)
	}

	createdAt := set.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO source_results (run_id, source, query, listings, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, source)
		DO UPDATE SET query = EXCLUDED.query, listings = EXCLUDED.listings, created_at = EXCLUDED.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, set.RunID, set.Source, set.Query, listings, createdAt); err != nil {
		return fmt.Errorf("failed to save result set: %w", err)
	}
	return nil
}

// GetAll returns every source's listings for a run. A row whose listings
// cannot be decoded is skipped and logged.
func (s *PostgresStore) GetAll(ctx context.Context, runID string) (map[string][]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, listings FROM source_results WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get result sets: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Listing)
	for rows.Next() {
		var (
			source string
			raw    []byte
		)
		if err := rows.Scan(&source, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan result set: %w", err)
		}

		listings, err := decodeListings(raw, s.logger.With("run_id", runID, "source", source))
		if err != nil {
			s.logger.Warn("skipping malformed result set", "run_id", runID, "source", source, "err", err)
			continue
		}
		out[source] = listings
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result sets: %w", err)
	}

	return out, nil
}

// Clear deletes a run's rows
func (s *PostgresStore) Clear(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM source_results WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear run %s: %w", runID, err)
	}
	return nil
}
