package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pricecompare/models"

	"github.com/shopspring/decimal"
)

// ErrWatchNotFound is returned when a watch does not exist or was removed
var ErrWatchNotFound = errors.New("watch not found")

type WatchRepository struct {
	db *sql.DB
}

func NewWatchRepository(db *sql.DB) *WatchRepository {
	return &WatchRepository{db: db}
}

const watchColumns = `id, query, target_price, is_active, last_checked, last_best_price, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWatch(row rowScanner) (*models.Watch, error) {
	var (
		w           models.Watch
		target      decimal.NullDecimal
		best        decimal.NullDecimal
		lastChecked sql.NullTime
	)
	if err := row.Scan(&w.ID, &w.Query, &target, &w.IsActive, &lastChecked, &best, &w.CreatedAt); err != nil {
		return nil, err
	}
	if target.Valid {
		w.TargetPrice = &target.Decimal
	}
	if best.Valid {
		w.LastBestPrice = &best.Decimal
	}
	if lastChecked.Valid {
		w.LastChecked = &lastChecked.Time
	}
	return &w, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// AddWatch creates a new watch
func (r *WatchRepository) AddWatch(ctx context.Context, query string, targetPrice *decimal.Decimal) (*models.Watch, error) {
	q := `
		INSERT INTO watches (query, target_price, created_at)
		VALUES ($1, $2, $3)
		RETURNING ` + watchColumns

	w, err := scanWatch(r.db.QueryRowContext(ctx, q, query, nullDecimal(targetPrice), time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to add watch: %w", err)
	}
	return w, nil
}

// GetWatches returns all active watches
func (r *WatchRepository) GetWatches(ctx context.Context) ([]models.Watch, error) {
	q := `SELECT ` + watchColumns + ` FROM watches WHERE is_active = true ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get watches: %w", err)
	}
	defer rows.Close()

	var watches []models.Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watch: %w", err)
		}
		watches = append(watches, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read watches: %w", err)
	}
	return watches, nil
}

// GetWatch returns an active watch by ID
func (r *WatchRepository) GetWatch(ctx context.Context, id int) (*models.Watch, error) {
	q := `SELECT ` + watchColumns + ` FROM watches WHERE id = $1 AND is_active = true`

	w, err := scanWatch(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watch: %w", err)
	}
	return w, nil
}

// DeleteWatch deactivates a watch
func (r *WatchRepository) DeleteWatch(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE watches SET is_active = false WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("failed to delete watch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrWatchNotFound
	}
	return nil
}

// UpdateChecked stores the outcome of a scheduled check. bestPrice is nil
// when the comparison had no priced rows.
func (r *WatchRepository) UpdateChecked(ctx context.Context, id int, checkedAt time.Time, bestPrice *decimal.Decimal) error {
	q := `UPDATE watches SET last_checked = $1, last_best_price = COALESCE($2, last_best_price) WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, q, checkedAt, nullDecimal(bestPrice), id); err != nil {
		return fmt.Errorf("failed to update watch: %w", err)
	}
	return nil
}

// AddAlert records a row that reached the watch's target price
func (r *WatchRepository) AddAlert(ctx context.Context, alert models.WatchAlert) (*models.WatchAlert, error) {
	if alert.TriggeredAt.IsZero() {
		alert.TriggeredAt = time.Now()
	}

	q := `
		INSERT INTO watch_alerts (watch_id, store, item_name, price, triggered_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, q, alert.WatchID, alert.Store, alert.ItemName, alert.Price, alert.TriggeredAt).Scan(&alert.ID); err != nil {
		return nil, fmt.Errorf("failed to record alert: %w", err)
	}
	return &alert, nil
}

// GetAlerts returns a watch's alerts, newest first
func (r *WatchRepository) GetAlerts(ctx context.Context, watchID int) ([]models.WatchAlert, error) {
	q := `
		SELECT id, watch_id, store, item_name, price, triggered_at
		FROM watch_alerts
		WHERE watch_id = $1
		ORDER BY triggered_at DESC
	`

	rows, err := r.db.QueryContext(ctx, q, watchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.WatchAlert{}
	for rows.Next() {
		var a models.WatchAlert
		if err := rows.Scan(&a.ID, &a.WatchID, &a.Store, &a.ItemName, &a.Price, &a.TriggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return alerts, nil
}
