// Package match implements the similarity scoring used by the reconciliation
// engine.
//
// Scoring function: agext/levenshtein Similarity over normalized strings
// (lower-cased, punctuation stripped, whitespace collapsed), scaled to an
// integer 0–100. The 90/60 threshold bands elsewhere in the pipeline are
// defined against this exact function.
package match

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/finlens/invoice-inbox/internal/domain/model"
)

const (
	// AutoMatchThreshold is the minimum score for an unattended assignment.
	AutoMatchThreshold = 90
	// SuggestThreshold is the minimum score for a review suggestion.
	SuggestThreshold = 60
	// MaxSuggestions caps the recorded mid-band candidates.
	MaxSuggestions = 3
)

// Candidate is one scored registry entry.
type Candidate struct {
	Entry *model.RegistryEntry
	Score int
}

// Normalize lower-cases s, strips punctuation, and collapses runs of
// whitespace to single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// punctuation dropped entirely
		}
	}
	return strings.TrimSpace(b.String())
}

// Score computes the 0–100 similarity between two raw strings.
func Score(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}
	return int(math.Round(levenshtein.Similarity(na, nb, params) * 100))
}

var params = levenshtein.NewParams()

// ScoreEntry returns the best score of name against the entry's canonical
// name and every alias.
func ScoreEntry(name string, entry *model.RegistryEntry) int {
	best := 0
	for _, candidate := range entry.Names() {
		if s := Score(name, candidate); s > best {
			best = s
		}
	}
	return best
}

// Best scores name against every registry entry and returns the winning
// candidate plus the suggestion band, both deterministic. Ties at the maximum
// score are broken by the lowest registry id; this affects which entry is
// auto-assigned, so it is fixed and tested. Suggestions are the top
// MaxSuggestions candidates with score >= SuggestThreshold, ordered by score
// descending then id ascending.
func Best(name string, entries []*model.RegistryEntry) (Candidate, []Candidate) {
	var best Candidate
	var band []Candidate

	for _, entry := range entries {
		score := ScoreEntry(name, entry)
		if score > best.Score || (score == best.Score && best.Entry != nil && entry.ID < best.Entry.ID) {
			best = Candidate{Entry: entry, Score: score}
		} else if best.Entry == nil {
			best = Candidate{Entry: entry, Score: score}
		}
		if score >= SuggestThreshold {
			band = append(band, Candidate{Entry: entry, Score: score})
		}
	}

	sort.SliceStable(band, func(i, j int) bool {
		if band[i].Score != band[j].Score {
			return band[i].Score > band[j].Score
		}
		return band[i].Entry.ID < band[j].Entry.ID
	})
	if len(band) > MaxSuggestions {
		band = band[:MaxSuggestions]
	}
	return best, band
}
