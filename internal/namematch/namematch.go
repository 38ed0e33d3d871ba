// Package namematch finds inventory items whose names are likely duplicates
// of a candidate name.
package namematch

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/erazemk/makerledger/internal/model"
)

// DefaultThreshold is the similarity at or above which two names are
// reported as possible duplicates.
const DefaultThreshold = 0.8

var folder = cases.Fold()

// Normalize folds case, strips diacritics and collapses whitespace so that
// "Filament  PLA" and "filament pla" compare equal.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return strings.Join(strings.Fields(folder.String(stripped)), " ")
}

// Similarity returns a score in [0, 1] where 1 means the normalized names are
// identical.
func Similarity(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// Match is an item whose name resembles the query.
type Match struct {
	Item  model.Item `json:"item"`
	Score float64    `json:"score"`
}

// FindSimilar returns the items whose names score at least threshold against
// name, best match first. A non-positive threshold uses DefaultThreshold.
func FindSimilar(name string, items []model.Item, threshold float64) []Match {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	matches := []Match{}
	if strings.TrimSpace(name) == "" {
		return matches
	}
	for _, item := range items {
		if s := Similarity(name, item.Name); s >= threshold {
			matches = append(matches, Match{Item: item, Score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
