package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"pricecompare/models"
)

// DefaultHistoryLimit caps how many comparisons a history query returns
const DefaultHistoryLimit = 20

// HistoryRepository records finished comparisons
type HistoryRepository interface {
	Record(ctx context.Context, result *models.ComparisonResult) error
	Recent(ctx context.Context, limit int) ([]models.ComparisonResult, error)
}

// MemoryHistory keeps the most recent comparisons in memory
type MemoryHistory struct {
	mu       sync.Mutex
	capacity int
	results  []models.ComparisonResult
}

func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryHistory{capacity: capacity}
}

func (h *MemoryHistory) Record(ctx context.Context, result *models.ComparisonResult) error {
	if result == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.results = append(h.results, *result)
	if over := len(h.results) - h.capacity; over > 0 {
		h.results = append([]models.ComparisonResult(nil), h.results[over:]...)
	}
	return nil
}

// Recent returns up to limit comparisons, newest first
func (h *MemoryHistory) Recent(ctx context.Context, limit int) ([]models.ComparisonResult, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.ComparisonResult, 0, limit)
	for i := len(h.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.results[i])
	}
	return out, nil
}

// PostgresHistory stores comparisons in the comparisons table
type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

func (h *PostgresHistory) Record(ctx context.Context, result *models.ComparisonResult) error {
	if result == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode comparison: %w", err)
	}

	query := `
		INSERT INTO comparisons (run_id, query, status, total_matches, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = h.db.ExecContext(ctx, query, result.RunID, result.Query, string(result.Status), result.TotalMatches, data, result.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to record comparison: %w", err)
	}
	return nil
}

func (h *PostgresHistory) Recent(ctx context.Context, limit int) ([]models.ComparisonResult, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx, `SELECT result FROM comparisons ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get comparisons: %w", err)
	}
	defer rows.Close()

	var results []models.ComparisonResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		var result models.ComparisonResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode comparison: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read comparisons: %w", err)
	}

	return results, nil
}
