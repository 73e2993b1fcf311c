// Package comparison merges per-source result sets into one ranked table.
package comparison

import (
	"sort"
	"time"

	"pricecompare/models"

	"github.com/charmbracelet/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// DefaultTopN is how many rows a comparison keeps
	DefaultTopN = 5

	msgNoData    = "No result sets found"
	msgNoMatches = "No products found above relevance threshold"
)

// Aggregator ranks listings across sources
type Aggregator struct {
	topN   int
	logger *log.Logger
}

// NewAggregator creates an aggregator keeping topN rows (DefaultTopN when <= 0)
func NewAggregator(topN int, logger *log.Logger) *Aggregator {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Aggregator{
		topN:   topN,
		logger: logger,
	}
}

// Aggregate uses the default top-N and no logging
func Aggregate(results map[string][]models.Listing, query string, minRelevance float64) *models.ComparisonResult {
	return (&Aggregator{topN: DefaultTopN}).Aggregate(results, query, minRelevance)
}

// Aggregate tags each listing with its store, keeps those at or above
// minRelevance, and returns the most relevant rows across all sources.
// Sources are visited in sorted order so equal scores rank deterministically.
func (a *Aggregator) Aggregate(results map[string][]models.Listing, query string, minRelevance float64) *models.ComparisonResult {
	result := &models.ComparisonResult{
		Query:       query,
		Headers:     append([]string{}, models.ComparisonHeaders...),
		Rows:        []models.ComparisonRow{},
		GeneratedAt: time.Now(),
	}

	sources := make([]string, 0, len(results))
	total := 0
	for source, listings := range results {
		sources = append(sources, source)
		total += len(listings)
	}
	sort.Strings(sources)

	if total == 0 {
		a.debug("no listings from any source", "query", query, "sources", len(sources))
		result.Status = models.ComparisonNoData
		result.Message = msgNoData
		return result
	}

	var merged []models.ComparisonRow
	for _, source := range sources {
		store := StoreName(source)
		kept := 0
		for _, l := range results[source] {
			if l.Relevance < minRelevance {
				continue
			}
			merged = append(merged, models.ComparisonRow{
				Store:     store,
				Brand:     l.Brand,
				Packing:   l.Packing,
				ItemName:  l.ItemName,
				Price:     l.Price,
				Relevance: l.Relevance,
			})
			kept++
		}
		a.debug("source filtered", "store", store, "listings", len(results[source]), "kept", kept, "min_relevance", minRelevance)
	}

	if len(merged) == 0 {
		result.Status = models.ComparisonNoMatches
		result.Message = msgNoMatches
		return result
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Relevance > merged[j].Relevance
	})
	if len(merged) > a.topN {
		merged = merged[:a.topN]
	}

	result.Status = models.ComparisonOK
	result.Rows = merged
	result.TotalMatches = len(merged)

	if a.logger != nil {
		a.logger.Info("comparison ranked", "query", query, "candidates", total, "matches", result.TotalMatches)
	}
	return result
}

func (a *Aggregator) debug(msg string, keyvals ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, keyvals...)
	}
}

// StoreName turns a source ID such as "bigbasket" into its display name
func StoreName(source string) string {
	return cases.Title(language.English).String(source)
}
