package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"pricecompare/comparison"
	"pricecompare/models"
	"pricecompare/pipeline"
	"pricecompare/relevance"
	"pricecompare/repository"
	"pricecompare/scraper"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

type CLI struct {
	LogLevel string `help:"Log level (debug, info, warn, error)" default:"info" env:"LOG_LEVEL"`

	Search    SearchCmd    `cmd:"" help:"Scrape every store for a product and print the comparison."`
	Aggregate AggregateCmd `cmd:"" help:"Rebuild a comparison from result files already on disk."`
}

type SearchCmd struct {
	Product         string        `help:"Product to search for" required:""`
	Headless        bool          `help:"Run Chromium without a window" default:"true" negatable:""`
	Chromium        string        `help:"Path to a Chromium binary" env:"CHROMIUM_PATH"`
	MinRelevance    float64       `help:"Minimum relevance (0-100) for a row to be shown" default:"50"`
	SourceRelevance float64       `help:"Minimum relevance (0-100) for a listing to be kept per store" default:"50"`
	ResultsDir      string        `help:"Directory per-store result files are written to" default:"results" env:"RESULTS_DIR"`
	Timeout         time.Duration `help:"Overall time limit" default:"5m"`
	Table           string        `help:"Also write the table to this file"`
	Output          string        `help:"Write the comparison as JSON to this file"`
}

type AggregateCmd struct {
	Dir          string  `help:"Directory holding results_<store>.json files" default:"results" type:"existingdir"`
	Query        string  `help:"Query the results were collected for" required:""`
	MinRelevance float64 `help:"Minimum relevance (0-100) for a row to be shown" default:"50"`
	Table        string  `help:"Also write the table to this file"`
	Output       string  `help:"Write the comparison as JSON to this file"`
}

func (c *SearchCmd) Run(cli *CLI) error {
	logger := newLogger(cli.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	browser, err := scraper.NewBrowser(scraper.BrowserOptions{
		Headless: c.Headless,
		Bin:      c.Chromium,
	}, logger.WithPrefix("browser"))
	if err != nil {
		return err
	}
	defer browser.Close()

	comparator := newSearchComparator(
		scraper.NewExtractors(browser, scraper.DefaultOptions(), logger.WithPrefix("scraper")),
		c.ResultsDir, c.SourceRelevance, c.MinRelevance, logger,
	)

	logger.Info("searching", "product", c.Product, "sources", comparator.Sources())
	result, err := comparator.Compare(ctx, c.Product)
	if err != nil {
		return err
	}

	return writeResult(os.Stdout, result, c.Table, c.Output)
}

func (c *AggregateCmd) Run(cli *CLI) error {
	logger := newLogger(cli.LogLevel)

	result, err := aggregateDir(context.Background(), c.Dir, c.Query, c.MinRelevance, logger)
	if err != nil {
		return err
	}

	return writeResult(os.Stdout, result, c.Table, c.Output)
}

// newSearchComparator writes results_<store>.json directly into dir, replacing
// the previous search's files, so aggregate can re-read them
func newSearchComparator(extractors []scraper.Extractor, dir string, sourceRelevance, minRelevance float64, logger *log.Logger) *pipeline.Comparator {
	cfg := pipeline.DefaultConfig()
	cfg.SourceMinRelevance = sourceRelevance
	cfg.AggregateMinRelevance = minRelevance
	cfg.KeepResults = true
	cfg.Overwrite = true

	return pipeline.NewComparator(
		cfg,
		extractors,
		relevance.NewScorer(),
		repository.NewFileStore(dir, logger.WithPrefix("store")),
		nil,
		logger.WithPrefix("pipeline"),
	)
}

// aggregateDir ranks the result files found directly in dir
func aggregateDir(ctx context.Context, dir, query string, minRelevance float64, logger *log.Logger) (*models.ComparisonResult, error) {
	store := repository.NewFileStore(dir, logger.WithPrefix("store"))

	results, err := store.GetAll(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load results from %s: %w", dir, err)
	}

	return comparison.NewAggregator(comparison.DefaultTopN, logger).Aggregate(results, query, minRelevance), nil
}

// writeResult prints the table to w and optionally saves it and the JSON form
func writeResult(w io.Writer, result *models.ComparisonResult, tablePath, outputPath string) error {
	if err := comparison.RenderTable(w, result); err != nil {
		return err
	}

	if tablePath != "" {
		f, err := os.Create(tablePath)
		if err != nil {
			return fmt.Errorf("failed to create table file: %w", err)
		}
		defer f.Close()
		if err := comparison.RenderTable(f, result); err != nil {
			return err
		}
	}

	if outputPath != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode comparison: %w", err)
		}
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
	}

	return nil
}

func newLogger(level string) *log.Logger {
	logger := log.New(os.Stderr)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Fatal("Invalid log level", "error", err)
	}
	logger.SetLevel(lvl)
	return logger
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("pricecompare"),
		kong.Description("Compare grocery prices across BigBasket, Blinkit and Swiggy Instamart"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
