package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/invoice-inbox/internal/domain/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ACME Supplies Pvt. Ltd.", "acme supplies pvt ltd"},
		{"  ACME   Supplies ", "acme supplies"},
		{"A&B-Construction, Inc!", "abconstruction inc"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestScore(t *testing.T) {
	t.Run("identical after normalization scores 100", func(t *testing.T) {
		assert.Equal(t, 100, Score("ACME Supplies", "acme supplies"))
		assert.Equal(t, 100, Score("ACME Supplies Pvt. Ltd.", "ACME Supplies Pvt Ltd"))
	})

	t.Run("empty strings score 0", func(t *testing.T) {
		assert.Equal(t, 0, Score("", "acme"))
		assert.Equal(t, 0, Score("acme", "  "))
	})

	t.Run("partial overlap lands mid band", func(t *testing.T) {
		s := Score("ACME Supplies", "ACME Supplies Pvt Ltd")
		assert.GreaterOrEqual(t, s, SuggestThreshold)
		assert.Less(t, s, AutoMatchThreshold)
	})

	t.Run("unrelated names land below the band", func(t *testing.T) {
		assert.Less(t, Score("Zenith Corp", "ACME Supplies"), SuggestThreshold)
	})
}

func entry(id int64, canonical string, aliases ...string) *model.RegistryEntry {
	return &model.RegistryEntry{ID: id, Kind: model.RegistryVendor, CanonicalName: canonical, Aliases: aliases}
}

func TestScoreEntry_UsesBestOfAliases(t *testing.T) {
	e := entry(1, "ACME Supplies Pvt Ltd", "ACME Supplies")
	assert.Equal(t, 100, ScoreEntry("ACME Supplies", e))
}

func TestBest_ExactAliasWins(t *testing.T) {
	entries := []*model.RegistryEntry{
		entry(1, "Globex Corporation"),
		entry(2, "ACME Supplies Pvt Ltd", "ACME Supplies"),
	}

	best, _ := Best("ACME Supplies", entries)
	require.NotNil(t, best.Entry)
	assert.Equal(t, int64(2), best.Entry.ID)
	assert.Equal(t, 100, best.Score)
}

func TestBest_TieBrokenByLowestID(t *testing.T) {
	// Two entries with identical names must resolve to the lower id, in
	// either iteration order.
	a := entry(7, "ACME Supplies")
	b := entry(3, "ACME Supplies")

	best, _ := Best("ACME Supplies", []*model.RegistryEntry{a, b})
	require.NotNil(t, best.Entry)
	assert.Equal(t, int64(3), best.Entry.ID)

	best, _ = Best("ACME Supplies", []*model.RegistryEntry{b, a})
	require.NotNil(t, best.Entry)
	assert.Equal(t, int64(3), best.Entry.ID)
}

func TestBest_SuggestionBand(t *testing.T) {
	entries := []*model.RegistryEntry{
		entry(1, "ACME Supplies Pvt Ltd"),
		entry(2, "ACME Supply Co"),
		entry(3, "Zenith Corp"),
		entry(4, "ACME Supplies Inc"),
		entry(5, "ACME Suppliers"),
	}

	_, suggestions := Best("ACME Supplies", entries)
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), MaxSuggestions)
	for i, s := range suggestions {
		assert.GreaterOrEqual(t, s.Score, SuggestThreshold, "suggestion %d", i)
		assert.NotEqual(t, int64(3), s.Entry.ID, "unrelated entry must not be suggested")
		if i > 0 {
			assert.GreaterOrEqual(t, suggestions[i-1].Score, s.Score, "ordered by score desc")
		}
	}
}

func TestBest_EmptyRegistry(t *testing.T) {
	best, suggestions := Best("ACME", nil)
	assert.Nil(t, best.Entry)
	assert.Zero(t, best.Score)
	assert.Empty(t, suggestions)
}
