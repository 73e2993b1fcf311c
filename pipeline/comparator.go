// Package pipeline runs a comparison end to end: every source is scraped,
// scored and filtered in parallel, then the stored sets are aggregated.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricecompare/comparison"
	"pricecompare/models"
	"pricecompare/relevance"
	"pricecompare/repository"
	"pricecompare/scraper"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyQuery is returned for a blank search query
var ErrEmptyQuery = errors.New("query is empty")

// Config holds the comparison thresholds and limits
type Config struct {
	SourceMinRelevance    float64
	AggregateMinRelevance float64
	FallbackSize          int
	TopN                  int
	MaxParallel           int
	// KeepResults leaves a run's source sets in the store after aggregation
	KeepResults bool
	// Overwrite stores every run under the empty run ID, replacing the sets
	// of the previous run. Comparisons must then not run concurrently.
	Overwrite bool
}

// DefaultConfig mirrors the documented defaults
func DefaultConfig() Config {
	return Config{
		SourceMinRelevance:    relevance.DefaultThreshold,
		AggregateMinRelevance: relevance.DefaultThreshold,
		FallbackSize:          relevance.DefaultFallbackSize,
		TopN:                  comparison.DefaultTopN,
		MaxParallel:           3,
		KeepResults:           true,
	}
}

// Comparator compares one query across all configured sources
type Comparator struct {
	extractors []scraper.Extractor
	scorer     *relevance.Scorer
	store      repository.ResultStore
	history    repository.HistoryRepository
	aggregator *comparison.Aggregator
	cfg        Config
	logger     *log.Logger
}

// NewComparator wires a comparator. history may be nil.
func NewComparator(cfg Config, extractors []scraper.Extractor, scorer *relevance.Scorer, store repository.ResultStore, history repository.HistoryRepository, logger *log.Logger) *Comparator {
	if cfg.FallbackSize <= 0 {
		cfg.FallbackSize = relevance.DefaultFallbackSize
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = len(extractors)
	}
	if scorer == nil {
		scorer = relevance.NewScorer()
	}

	return &Comparator{
		extractors: extractors,
		scorer:     scorer,
		store:      store,
		history:    history,
		aggregator: comparison.NewAggregator(cfg.TopN, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// Sources lists the source IDs this comparator queries
func (c *Comparator) Sources() []string {
	ids := make([]string, len(c.extractors))
	for i, e := range c.extractors {
		ids[i] = e.Source()
	}
	return ids
}

// Compare runs every source pipeline for query and aggregates the results.
// A failing source is logged and counts as a source without listings.
func (c *Comparator) Compare(ctx context.Context, query string) (*models.ComparisonResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID)
	start := time.Now()
	logger.Info("comparison started", "query", query, "sources", len(c.extractors))

	storeID := runID
	if c.cfg.Overwrite {
		storeID = ""
		if err := c.store.Clear(ctx, storeID); err != nil {
			return nil, fmt.Errorf("failed to clear previous result sets: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)
	for _, extractor := range c.extractors {
		extractor := extractor
		g.Go(func() error {
			c.runSource(gctx, logger, storeID, query, extractor)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("comparison cancelled: %w", err)
	}

	results, err := c.store.GetAll(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load result sets: %w", err)
	}

	result := c.aggregator.Aggregate(results, query, c.cfg.AggregateMinRelevance)
	result.RunID = runID

	if !c.cfg.KeepResults {
		if err := c.store.Clear(ctx, storeID); err != nil {
			logger.Warn("failed to clear result sets", "err", err)
		}
	}

	if c.history != nil {
		if err := c.history.Record(ctx, result); err != nil {
			logger.Error("failed to record comparison", "err", err)
		}
	}

	logger.Info("comparison finished",
		"query", query,
		"status", result.Status,
		"matches", result.TotalMatches,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// runSource extracts, scores, filters and stores one source's listings
func (c *Comparator) runSource(ctx context.Context, logger *log.Logger, runID, query string, extractor scraper.Extractor) {
	source := extractor.Source()
	logger = logger.With("source", source)

	raw, err := extractor.Extract(ctx, query)
	if err != nil {
		logger.Warn("extraction failed, source contributes no listings", "err", err)
		raw = nil
	}

	scored := make([]models.Listing, 0, len(raw))
	for _, r := range raw {
		scored = append(scored, c.scorer.ScoreListing(query, r))
	}
	filtered := relevance.FilterWithFallback(scored, c.cfg.SourceMinRelevance, c.cfg.FallbackSize)

	set := models.SourceResultSet{
		RunID:     runID,
		Source:    source,
		Query:     query,
		Listings:  filtered,
		CreatedAt: time.Now(),
	}
	if err := c.store.Put(ctx, set); err != nil {
		logger.Error("failed to store result set", "err", err)
		return
	}

	logger.Debug("source done", "extracted", len(raw), "kept", len(filtered))
}
