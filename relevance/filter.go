package relevance

import (
	"sort"

	"pricecompare/models"
)

const (
	// DefaultThreshold is the per-source relevance a listing needs to be kept
	DefaultThreshold = 50.0
	// DefaultFallbackSize is how many listings are kept when none pass the threshold
	DefaultFallbackSize = 5
)

// Filter selects a source's listings with the default fallback size
func Filter(listings []models.Listing, threshold float64) []models.Listing {
	return FilterWithFallback(listings, threshold, DefaultFallbackSize)
}

// FilterWithFallback keeps every listing at or above threshold in input
// order. If none qualify, it keeps the fallbackSize most relevant listings
// instead. The result is deduplicated by brand, item name and packing.
func FilterWithFallback(listings []models.Listing, threshold float64, fallbackSize int) []models.Listing {
	if len(listings) == 0 {
		return []models.Listing{}
	}

	kept := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Relevance >= threshold {
			kept = append(kept, l)
		}
	}

	if len(kept) == 0 {
		kept = TopByRelevance(listings, fallbackSize)
	}

	return Dedupe(kept)
}

// TopByRelevance returns the n most relevant listings, highest first.
// Ties keep their input order. The input slice is not modified.
func TopByRelevance(listings []models.Listing, n int) []models.Listing {
	sorted := make([]models.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Relevance > sorted[j].Relevance
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Dedupe drops listings whose brand, item name and packing were already seen
func Dedupe(listings []models.Listing) []models.Listing {
	seen := make(map[models.ListingKey]struct{}, len(listings))
	unique := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		key := l.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, l)
	}
	return unique
}
