package relevance

import (
	"math/rand"
	"sort"
	"testing"

	"pricecompare/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listing(brand, item, packing string, relevance float64) models.Listing {
	return models.Listing{Brand: brand, ItemName: item, Packing: packing, Price: "₹10", Relevance: relevance}
}

func TestFilter(t *testing.T) {
	t.Run("empty input yields empty output", func(t *testing.T) {
		got := Filter(nil, 50)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("keeps listings at or above threshold in input order", func(t *testing.T) {
		in := []models.Listing{
			listing("Amul", "Milk", "1 L", 60),
			listing("Mother Dairy", "Milk", "1 L", 49.99),
			listing("Nandini", "Milk", "500 ml", 50),
			listing("Heritage", "Milk", "1 L", 90),
		}

		got := Filter(in, 50)

		require.Len(t, got, 3)
		assert.Equal(t, "Amul", got[0].Brand)
		assert.Equal(t, "Nandini", got[1].Brand)
		assert.Equal(t, "Heritage", got[2].Brand)
		for _, l := range got {
			assert.GreaterOrEqual(t, l.Relevance, 50.0)
		}
	})

	t.Run("falls back to top five when nothing qualifies", func(t *testing.T) {
		in := []models.Listing{
			listing("A", "x", "1", 10),
			listing("B", "x", "1", 40),
			listing("C", "x", "1", 30),
			listing("D", "x", "1", 5),
			listing("E", "x", "1", 45),
			listing("F", "x", "1", 20),
			listing("G", "x", "1", 1),
		}

		got := Filter(in, 50)

		require.Len(t, got, 5)
		brands := []string{got[0].Brand, got[1].Brand, got[2].Brand, got[3].Brand, got[4].Brand}
		assert.Equal(t, []string{"E", "B", "C", "F", "A"}, brands)
	})

	t.Run("fallback keeps input order on ties", func(t *testing.T) {
		in := []models.Listing{
			listing("A", "x", "1", 10),
			listing("B", "x", "1", 10),
			listing("C", "x", "1", 10),
		}

		got := Filter(in, 50)

		require.Len(t, got, 3)
		assert.Equal(t, "A", got[0].Brand)
		assert.Equal(t, "B", got[1].Brand)
		assert.Equal(t, "C", got[2].Brand)
	})

	t.Run("fallback of a single zero-score listing is kept", func(t *testing.T) {
		got := Filter([]models.Listing{listing("A", "x", "1", 0)}, 50)
		assert.Len(t, got, 1)
	})

	t.Run("deduplicates keeping the first occurrence", func(t *testing.T) {
		in := []models.Listing{
			listing("Amul", "Milk", "1 L", 70),
			listing("Amul", "Milk", "1 L", 95),
			listing("Amul", "Milk", "500 ml", 80),
		}

		got := Filter(in, 50)

		require.Len(t, got, 2)
		assert.Equal(t, 70.0, got[0].Relevance)
		assert.Equal(t, "500 ml", got[1].Packing)
	})

	t.Run("does not modify the input", func(t *testing.T) {
		in := []models.Listing{
			listing("A", "x", "1", 10),
			listing("B", "x", "1", 40),
		}
		Filter(in, 50)
		assert.Equal(t, "A", in[0].Brand)
		assert.Equal(t, "B", in[1].Brand)
	})
}

func TestFilterWithFallbackSize(t *testing.T) {
	in := []models.Listing{
		listing("A", "x", "1", 10),
		listing("B", "x", "1", 40),
		listing("C", "x", "1", 30),
	}

	got := FilterWithFallback(in, 50, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Brand)
	assert.Equal(t, "C", got[1].Brand)
}

func TestFilterFallbackMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 100; round++ {
		n := 1 + rng.Intn(20)
		in := make([]models.Listing, n)
		for i := range in {
			// unique keys so deduplication does not hide anything
			in[i] = listing("brand", "item", string(rune('a'+i)), float64(rng.Intn(5000))/100)
		}

		got := Filter(in, 50)

		expected := make([]float64, n)
		for i, l := range in {
			expected[i] = l.Relevance
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(expected)))
		if len(expected) > DefaultFallbackSize {
			expected = expected[:DefaultFallbackSize]
		}

		require.Len(t, got, len(expected))
		for i, l := range got {
			assert.Equal(t, expected[i], l.Relevance)
		}
	}
}

func TestDedupe(t *testing.T) {
	in := []models.Listing{
		listing("Amul", "Milk", "1 L", 10),
		listing("Amul", "Milk", "1 L", 20),
		listing("Amul", "Butter", "1 L", 30),
		listing("Amul", "Milk", "1 L", 40),
	}

	got := Dedupe(in)

	require.Len(t, got, 2)
	assert.Equal(t, 10.0, got[0].Relevance)
	assert.Equal(t, "Butter", got[1].ItemName)
}

func TestTopByRelevance(t *testing.T) {
	in := []models.Listing{
		listing("A", "x", "1", 1),
		listing("B", "x", "1", 3),
		listing("C", "x", "1", 2),
	}

	assert.Len(t, TopByRelevance(in, 10), 3)
	top := TopByRelevance(in, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "B", top[0].Brand)
}
