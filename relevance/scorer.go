// Package relevance scores scraped listings against a search query and
// selects which listings a source keeps.
package relevance

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"pricecompare/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultNGramSize is the character n-gram length used for vectors
const DefaultNGramSize = 3

// Scorer computes TF-IDF cosine similarity between a query and listing text.
// A Scorer has no mutable state and is safe for concurrent use.
type Scorer struct {
	ngram         int
	minSimilarity float64
}

// Option configures a Scorer
type Option func(*Scorer)

// WithNGramSize sets the character n-gram length
func WithNGramSize(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.ngram = n
		}
	}
}

// WithMinSimilarity zeroes any similarity (0-1) below the given cut-off
func WithMinSimilarity(min float64) Option {
	return func(s *Scorer) {
		if min > 0 && min <= 1 {
			s.minSimilarity = min
		}
	}
}

// NewScorer creates a scorer with trigram vectors and no cut-off
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		ngram: DefaultNGramSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the relevance of a listing to the query as a percentage in
// [0,100] rounded to two decimals. An empty query or description scores 0.
func (s *Scorer) Score(query, brand, itemName, packing string) float64 {
	return s.Similarity(query, Describe(brand, itemName, packing))
}

// ScoreListing scores a raw listing and returns it with its relevance attached
func (s *Scorer) ScoreListing(query string, raw models.RawListing) models.Listing {
	return models.Listing{
		Brand:     raw.Brand,
		ItemName:  raw.ItemName,
		Packing:   raw.Packing,
		Price:     raw.Price,
		Relevance: s.Score(query, raw.Brand, raw.ItemName, raw.Packing),
	}
}

// Similarity compares two free texts and returns a percentage in [0,100]
func (s *Scorer) Similarity(a, b string) float64 {
	gramsA := s.grams(a)
	gramsB := s.grams(b)
	if len(gramsA) == 0 || len(gramsB) == 0 {
		return 0
	}

	// The corpus is the two documents being compared.
	df := make(map[string]int, len(gramsA)+len(gramsB))
	for g := range gramsA {
		df[g]++
	}
	for g := range gramsB {
		df[g]++
	}

	vecA := weigh(gramsA, df, 2)
	vecB := weigh(gramsB, df, 2)

	cosine := dot(vecA, vecB)
	if cosine < s.minSimilarity {
		cosine = 0
	}

	percentage := math.Round(cosine*100*100) / 100
	return math.Max(0, math.Min(100, percentage))
}

// Describe joins brand, item name and packing into one description.
// Empty and unknown fields contribute nothing.
func Describe(brand, itemName, packing string) string {
	parts := make([]string, 0, 3)
	for _, field := range []string{brand, itemName, packing} {
		if models.IsKnown(field) {
			parts = append(parts, strings.TrimSpace(field))
		}
	}
	return strings.Join(parts, " ")
}

// grams returns n-gram term frequencies for a text. Each word is padded
// with one space on both sides before slicing, so short words still count.
func (s *Scorer) grams(text string) map[string]float64 {
	words := s.words(text)
	if len(words) == 0 {
		return nil
	}

	counts := make(map[string]float64)
	for _, w := range words {
		padded := []rune(" " + w + " ")
		if len(padded) <= s.ngram {
			counts[string(padded)]++
			continue
		}
		for i := 0; i+s.ngram <= len(padded); i++ {
			counts[string(padded[i:i+s.ngram])]++
		}
	}
	return counts
}

// words normalises text and splits it into lowercase alphanumeric words
func (s *Scorer) words(text string) []string {
	// Casers keep state, so each call gets its own.
	text = cases.Fold().String(norm.NFKC.String(text))

	var b strings.Builder
	for _, r := range text {
		switch {
		case r == ',' || r == '-' || r == '.' || r == '/':
			// dropped so "1.5" and "1,000" stay one word
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// weigh converts term frequencies to an L2-normalised TF-IDF vector using
// smoothed idf: ln((1+n)/(1+df)) + 1
func weigh(tf map[string]float64, df map[string]int, docs int) map[string]float64 {
	keys := make([]string, 0, len(tf))
	for g := range tf {
		keys = append(keys, g)
	}
	sort.Strings(keys)

	vec := make(map[string]float64, len(tf))
	var norm2 float64
	for _, g := range keys {
		idf := math.Log(float64(1+docs)/float64(1+df[g])) + 1
		w := tf[g] * idf
		vec[g] = w
		norm2 += w * w
	}
	if norm2 == 0 {
		return vec
	}
	n := math.Sqrt(norm2)
	for g := range vec {
		vec[g] /= n
	}
	return vec
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	// Sum in key order so results do not depend on map iteration.
	keys := make([]string, 0, len(a))
	for g := range a {
		if _, ok := b[g]; ok {
			keys = append(keys, g)
		}
	}
	sort.Strings(keys)

	var sum float64
	for _, g := range keys {
		sum += a[g] * b[g]
	}
	return sum
}
