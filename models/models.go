package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Unknown marks a listing field the source page did not provide.
const Unknown = "N/A"

// RawListing is one product card as read from a source page, before scoring
type RawListing struct {
	Brand    string `json:"brand"`
	ItemName string `json:"item_name"`
	Packing  string `json:"packing"`
	Price    string `json:"price"`
}

// HasPrice returns true if the card carried a usable price
func (r RawListing) HasPrice() bool {
	return IsKnown(r.Price)
}

// Listing is a scored product offer found on a source site
type Listing struct {
	Brand     string  `json:"brand"`
	ItemName  string  `json:"item_name"`
	Packing   string  `json:"packing"`
	Price     string  `json:"price"`
	Relevance float64 `json:"relevance"`
}

// HasPrice returns true if the listing has a determinable price
func (l Listing) HasPrice() bool {
	return IsKnown(l.Price)
}

// Key returns the (brand, item name, packing) triple used for deduplication
func (l Listing) Key() ListingKey {
	return ListingKey{Brand: l.Brand, ItemName: l.ItemName, Packing: l.Packing}
}

// ListingKey identifies a product within one source
type ListingKey struct {
	Brand    string
	ItemName string
	Packing  string
}

// IsKnown reports whether a field holds a real value rather than the unknown sentinel
func IsKnown(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" || v == Unknown {
		return false
	}
	switch strings.ToLower(v) {
	case "null", "undefined", "n/a":
		return false
	}
	return true
}

// OrUnknown returns the trimmed value, or Unknown when it is empty
func OrUnknown(value string) string {
	v := strings.TrimSpace(value)
	if !IsKnown(v) {
		return Unknown
	}
	return v
}

// SourceResultSet is the filtered listing set one source produced for one query
type SourceResultSet struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Query     string    `json:"query"`
	Listings  []Listing `json:"listings"`
	CreatedAt time.Time `json:"created_at"`
}

// ComparisonStatus distinguishes the outcomes of an aggregation
type ComparisonStatus string

const (
	ComparisonOK        ComparisonStatus = "ok"
	ComparisonNoData    ComparisonStatus = "no_data"
	ComparisonNoMatches ComparisonStatus = "no_matches"
)

// ComparisonHeaders are the column names of a comparison table
var ComparisonHeaders = []string{"Store", "Brand", "Packing", "Item Name", "Price", "Relevance"}

// ComparisonRow is one ranked listing in a comparison
type ComparisonRow struct {
	Store     string  `json:"store"`
	Brand     string  `json:"brand"`
	Packing   string  `json:"packing"`
	ItemName  string  `json:"item_name"`
	Price     string  `json:"price"`
	Relevance float64 `json:"relevance"`
}

// ComparisonResult is the ranked, cross-source result for one query
type ComparisonResult struct {
	RunID        string           `json:"run_id,omitempty"`
	Query        string           `json:"query"`
	Status       ComparisonStatus `json:"status"`
	Message      string           `json:"message,omitempty"`
	TotalMatches int              `json:"total_matches"`
	Headers      []string         `json:"headers"`
	Rows         []ComparisonRow  `json:"rows"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// HasData returns false when no source contributed any listing
func (c *ComparisonResult) HasData() bool {
	return c.Status != ComparisonNoData
}

// Watch is a query re-run on a schedule, optionally with a target price
type Watch struct {
	ID            int              `json:"id" db:"id"`
	Query         string           `json:"query" db:"query"`
	TargetPrice   *decimal.Decimal `json:"target_price,omitempty" db:"target_price"`
	IsActive      bool             `json:"is_active" db:"is_active"`
	LastChecked   *time.Time       `json:"last_checked" db:"last_checked"`
	LastBestPrice *decimal.Decimal `json:"last_best_price,omitempty" db:"last_best_price"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// WatchAlert records a comparison row that reached a watch's target price
type WatchAlert struct {
	ID          int             `json:"id" db:"id"`
	WatchID     int             `json:"watch_id" db:"watch_id"`
	Store       string          `json:"store" db:"store"`
	ItemName    string          `json:"item_name" db:"item_name"`
	Price       decimal.Decimal `json:"price" db:"price"`
	TriggeredAt time.Time       `json:"triggered_at" db:"triggered_at"`
}

// AddWatchRequest represents the request to add a new watch
type AddWatchRequest struct {
	Query       string           `json:"query" validate:"required"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
}

// SearchRequest is the body of a search call
type SearchRequest struct {
	Query string `json:"query"`
}
