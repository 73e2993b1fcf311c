package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pricecompare/models"

	"github.com/charmbracelet/log"
)

const (
	resultFilePrefix = "results_"
	resultFileSuffix = ".json"
)

// FileStore writes each result set to <dir>/<runID>/results_<source>.json.
// An empty run ID addresses dir itself, which is how a directory produced
// by an earlier run is read back.
type FileStore struct {
	dir    string
	logger *log.Logger
}

func NewFileStore(dir string, logger *log.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logger}
}

// persistedListing accepts both the current and the legacy key layout
type persistedListing struct {
	Brand          string          `json:"brand"`
	ItemName       string          `json:"item_name"`
	Packing        string          `json:"packing"`
	Price          string          `json:"price"`
	Relevance      json.RawMessage `json:"relevance,omitempty"`
	RelevanceScore json.RawMessage `json:"relevance_score,omitempty"`
}

// RunDir returns the directory a run's files live in
func (s *FileStore) RunDir(runID string) string {
	if runID == "" {
		return s.dir
	}
	return filepath.Join(s.dir, runID)
}

// Put writes the set, overwriting any earlier file for the same run and source
func (s *FileStore) Put(ctx context.Context, set models.SourceResultSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if set.Source == "" || strings.ContainsAny(set.Source, `/\`) {
		return fmt.Errorf("invalid source id %q", set.Source)
	}

	dir := s.RunDir(set.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	if set.Listings == nil {
		set.Listings = []models.Listing{}
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result set: %w", err)
	}

	path := filepath.Join(dir, resultFilePrefix+set.Source+resultFileSuffix)
	tmp, err := os.CreateTemp(dir, ".tmp-"+set.Source+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write result set: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write result set: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save result set: %w", err)
	}

	s.logger.Debug("result set saved", "run_id", set.RunID, "source", set.Source, "listings", len(set.Listings), "path", path)
	return nil
}

// GetAll loads every results_<source>.json file of a run. Files that cannot
// be decoded are skipped and logged.
func (s *FileStore) GetAll(ctx context.Context, runID string) (map[string][]models.Listing, error) {
	dir := s.RunDir(runID)
	out := make(map[string][]models.Listing)

	paths, err := filepath.Glob(filepath.Join(dir, resultFilePrefix+"*"+resultFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list result files: %w", err)
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		source := sourceFromFilename(path)
		if source == "" {
			continue
		}

		listings, err := s.readFile(path)
		if err != nil {
			s.logger.Warn("skipping malformed result file", "path", path, "err", err)
			continue
		}
		out[source] = listings
	}

	return out, nil
}

// Clear removes the run directory, or only the result files when runID is empty
func (s *FileStore) Clear(ctx context.Context, runID string) error {
	if runID != "" {
		if err := os.RemoveAll(s.RunDir(runID)); err != nil {
			return fmt.Errorf("failed to clear run %s: %w", runID, err)
		}
		return nil
	}

	paths, err := filepath.Glob(filepath.Join(s.dir, resultFilePrefix+"*"+resultFileSuffix))
	if err != nil {
		return fmt.Errorf("failed to list result files: %w", err)
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

func (s *FileStore) readFile(path string) ([]models.Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeListings(data, s.logger.With("path", path))
}

// decodeListings reads a bare listing array or an object with a "listings"
// array. Relevance may be a number or a numeric string under "relevance" or
// the legacy "relevance_score"; anything else is logged and read as 0.
func decodeListings(data []byte, logger *log.Logger) ([]models.Listing, error) {
	var raw []persistedListing
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
	case bytes.HasPrefix(trimmed, []byte("{")):
		var set struct {
			Listings []persistedListing `json:"listings"`
		}
		if err := json.Unmarshal(trimmed, &set); err != nil {
			return nil, err
		}
		raw = set.Listings
	default:
		return nil, fmt.Errorf("unexpected content")
	}

	listings := make([]models.Listing, 0, len(raw))
	for i, p := range raw {
		value := p.Relevance
		if len(value) == 0 {
			value = p.RelevanceScore
		}
		relevance, err := parseRelevance(value)
		if err != nil {
			logger.Warn("invalid relevance, using 0", "index", i, "err", err)
		}
		listings = append(listings, models.Listing{
			Brand:     models.OrUnknown(p.Brand),
			ItemName:  models.OrUnknown(p.ItemName),
			Packing:   models.OrUnknown(p.Packing),
			Price:     models.OrUnknown(p.Price),
			Relevance: relevance,
		})
	}
	return listings, nil
}

// parseRelevance reads a number or a numeric string. Anything else is 0.
func parseRelevance(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing relevance")
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("relevance is neither number nor string: %s", raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("relevance %q is not numeric", s)
	}
	return f, nil
}

func sourceFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimPrefix(name, resultFilePrefix)
	name = strings.TrimSuffix(name, resultFileSuffix)
	return strings.ToLower(name)
}
