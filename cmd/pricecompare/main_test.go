package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"pricecompare/models"
	"pricecompare/scraper"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestAggregateDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "results_blinkit.json", `[
		{"brand": "Amul", "item_name": "Taaza Milk", "packing": "1 L", "price": "₹66", "relevance_score": 82.5}
	]`)
	writeFile(t, dir, "results_swiggy.json", `[
		{"brand": "Nestle", "item_name": "A2 Milk", "packing": "500 ml", "price": "₹90", "relevance_score": "41"}
	]`)

	result, err := aggregateDir(context.Background(), dir, "milk 1 litre", 50, log.New(io.Discard))

	require.NoError(t, err)
	assert.Equal(t, models.ComparisonOK, result.Status)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Blinkit", result.Rows[0].Store)
	assert.Equal(t, 82.5, result.Rows[0].Relevance)
}

func TestAggregateDirWithoutResults(t *testing.T) {
	result, err := aggregateDir(context.Background(), t.TempDir(), "milk", 50, log.New(io.Discard))

	require.NoError(t, err)
	assert.Equal(t, models.ComparisonNoData, result.Status)
}

type staticExtractor struct {
	source   string
	listings []models.RawListing
}

func (e staticExtractor) Source() string { return e.source }

func (e staticExtractor) Extract(ctx context.Context, query string) ([]models.RawListing, error) {
	return e.listings, nil
}

func TestSearchThenAggregate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := log.New(io.Discard)

	first := newSearchComparator([]scraper.Extractor{
		staticExtractor{source: "blinkit", listings: []models.RawListing{
			{Brand: "Amul", ItemName: "Taaza Toned Milk", Packing: "1 L", Price: "₹66"},
		}},
		staticExtractor{source: "swiggy", listings: []models.RawListing{
			{Brand: "Nandini", ItemName: "Toned Milk", Packing: "1 L", Price: "₹52"},
		}},
	}, dir, 50, 50, logger)

	searched, err := first.Compare(ctx, "toned milk")
	require.NoError(t, err)
	require.Equal(t, models.ComparisonOK, searched.Status)

	aggregated, err := aggregateDir(ctx, dir, "toned milk", 50, logger)
	require.NoError(t, err)
	assert.Equal(t, models.ComparisonOK, aggregated.Status)
	assert.Equal(t, searched.Rows, aggregated.Rows)

	// a second search replaces the first one's files instead of adding a run
	second := newSearchComparator([]scraper.Extractor{
		staticExtractor{source: "bigbasket", listings: []models.RawListing{
			{Brand: "Heritage", ItemName: "Toned Milk", Packing: "500 ml", Price: "₹30"},
		}},
	}, dir, 50, 50, logger)

	_, err = second.Compare(ctx, "toned milk")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"results_bigbasket.json"}, names)

	aggregated, err = aggregateDir(ctx, dir, "toned milk", 50, logger)
	require.NoError(t, err)
	require.Len(t, aggregated.Rows, 1)
	assert.Equal(t, "Heritage", aggregated.Rows[0].Brand)
}

func TestWriteResult(t *testing.T) {
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "comparison.txt")
	outputPath := filepath.Join(dir, "output.json")

	result := &models.ComparisonResult{
		Query:        "milk",
		Status:       models.ComparisonOK,
		TotalMatches: 1,
		Headers:      models.ComparisonHeaders,
		Rows: []models.ComparisonRow{
			{Store: "Blinkit", Brand: "Amul", Packing: "1 L", ItemName: "Taaza Milk", Price: "₹66", Relevance: 82.5},
		},
	}

	var stdout bytes.Buffer
	require.NoError(t, writeResult(&stdout, result, tablePath, outputPath))

	assert.Contains(t, stdout.String(), "Taaza Milk")

	table, err := os.ReadFile(tablePath)
	require.NoError(t, err)
	assert.Equal(t, stdout.String(), string(table))

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	var decoded models.ComparisonResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, result.Rows, decoded.Rows)
	assert.Equal(t, models.ComparisonOK, decoded.Status)
}
