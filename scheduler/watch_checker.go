// Package scheduler runs searches in the background: queued tasks from the
// API and scheduled watch queries.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pricecompare/models"
	"pricecompare/scraper"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// DefaultWatchSchedule runs at 00:00 and 12:00
const DefaultWatchSchedule = "0 0 */12 * * *"

// WatchStore is the persistence the checker needs
type WatchStore interface {
	GetWatches(ctx context.Context) ([]models.Watch, error)
	UpdateChecked(ctx context.Context, id int, checkedAt time.Time, bestPrice *decimal.Decimal) error
	AddAlert(ctx context.Context, alert models.WatchAlert) (*models.WatchAlert, error)
}

// CheckSummary reports one pass over the active watches
type CheckSummary struct {
	Checked int `json:"checked"`
	Failed  int `json:"failed"`
	Alerts  int `json:"alerts"`
}

// WatchChecker re-runs watch queries on a cron schedule
type WatchChecker struct {
	cron     *cron.Cron
	schedule string
	watches  WatchStore
	search   SearchFunc
	timeout  time.Duration
	logger   *log.Logger

	// one pass at a time
	pass sync.Mutex
}

func NewWatchChecker(schedule string, watches WatchStore, search SearchFunc, timeout time.Duration, logger *log.Logger) *WatchChecker {
	if schedule == "" {
		schedule = DefaultWatchSchedule
	}
	return &WatchChecker{
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		watches:  watches,
		search:   search,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start schedules the checks and runs one pass immediately
func (wc *WatchChecker) Start() error {
	if _, err := wc.cron.AddFunc(wc.schedule, wc.scheduledPass); err != nil {
		return fmt.Errorf("failed to schedule watch checker: %w", err)
	}

	go wc.scheduledPass()

	wc.cron.Start()
	wc.logger.Info("watch checker scheduled", "schedule", wc.schedule)
	return nil
}

// Stop stops the schedule and waits for a running pass
func (wc *WatchChecker) Stop() {
	<-wc.cron.Stop().Done()
	wc.pass.Lock()
	defer wc.pass.Unlock()
}

// CheckNow runs a pass synchronously
func (wc *WatchChecker) CheckNow(ctx context.Context) (CheckSummary, error) {
	wc.logger.Info("manual watch check triggered")
	return wc.checkAll(ctx)
}

func (wc *WatchChecker) scheduledPass() {
	if _, err := wc.checkAll(context.Background()); err != nil {
		wc.logger.Error("watch check failed", "err", err)
	}
}

func (wc *WatchChecker) checkAll(ctx context.Context) (CheckSummary, error) {
	wc.pass.Lock()
	defer wc.pass.Unlock()

	var summary CheckSummary

	watches, err := wc.watches.GetWatches(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to get watches: %w", err)
	}
	if len(watches) == 0 {
		wc.logger.Debug("no watches to check")
		return summary, nil
	}

	wc.logger.Info("checking watches", "count", len(watches))
	for _, w := range watches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		alerts, err := wc.checkWatch(ctx, w)
		if err != nil {
			summary.Failed++
			wc.logger.Warn("watch check failed", "watch_id", w.ID, "query", w.Query, "err", err)
			continue
		}
		summary.Checked++
		summary.Alerts += len(alerts)
	}

	wc.logger.Info("watch check finished", "checked", summary.Checked, "failed", summary.Failed, "alerts", summary.Alerts)
	return summary, nil
}

// checkWatch runs the watch query, records the best price and raises an
// alert for every row at or below the target price. A target that was
// already reached at the same or a lower price is not alerted again.
func (wc *WatchChecker) checkWatch(ctx context.Context, w models.Watch) ([]models.WatchAlert, error) {
	if wc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wc.timeout)
		defer cancel()
	}

	result, err := wc.search(ctx, w.Query)
	if err != nil {
		return nil, err
	}

	rows := pricedRows(result)
	var best *decimal.Decimal
	for i := range rows {
		if best == nil || rows[i].price.LessThan(*best) {
			p := rows[i].price
			best = &p
		}
	}

	if err := wc.watches.UpdateChecked(ctx, w.ID, time.Now(), best); err != nil {
		return nil, err
	}

	if w.TargetPrice == nil || best == nil {
		return nil, nil
	}
	if w.LastBestPrice != nil && w.LastBestPrice.LessThanOrEqual(*w.TargetPrice) && !best.LessThan(*w.LastBestPrice) {
		return nil, nil
	}

	var alerts []models.WatchAlert
	for _, r := range rows {
		if r.price.GreaterThan(*w.TargetPrice) {
			continue
		}
		alert, err := wc.watches.AddAlert(ctx, models.WatchAlert{
			WatchID:     w.ID,
			Store:       r.row.Store,
			ItemName:    r.row.ItemName,
			Price:       r.price,
			TriggeredAt: time.Now(),
		})
		if err != nil {
			return alerts, err
		}
		wc.logger.Info("watch target reached", "watch_id", w.ID, "store", r.row.Store, "item", r.row.ItemName, "price", r.price, "target", *w.TargetPrice)
		alerts = append(alerts, *alert)
	}
	return alerts, nil
}

type pricedRow struct {
	row   models.ComparisonRow
	price decimal.Decimal
}

// pricedRows keeps the rows whose price parses
func pricedRows(result *models.ComparisonResult) []pricedRow {
	if result == nil {
		return nil
	}

	var out []pricedRow
	for _, row := range result.Rows {
		if !models.IsKnown(row.Price) {
			continue
		}
		price, _, err := scraper.ParsePrice(row.Price)
		if err != nil {
			continue
		}
		out = append(out, pricedRow{row: row, price: price})
	}
	return out
}
