// Package suggest ranks gazetteer entries against a typed query.
package suggest

import (
	"sort"
	"strings"

	"github.com/istadmins/RotamBenim-sub000/libs/textnorm"
)

// DefaultMaxResults caps the suggestion list.
const DefaultMaxResults = 8

// MatchType names the field that produced a suggestion's score.
type MatchType string

const (
	MatchName    MatchType = "name"
	MatchCity    MatchType = "city"
	MatchCountry MatchType = "country"
)

// Entry is a known place offered as a suggestion.
type Entry struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Category string `json:"category,omitempty"`
	MapQuery string `json:"mapQuery,omitempty"`
}

// Suggestion is a ranked entry.
type Suggestion struct {
	Entry
	MatchType MatchType `json:"matchType"`
	Score     int       `json:"score"`
}

// rules are tried in order and the first hit decides the score.
var rules = []struct {
	field  MatchType
	prefix bool
	score  int
}{
	{MatchName, true, 10},
	{MatchName, false, 7},
	{MatchCity, true, 8},
	{MatchCity, false, 5},
	{MatchCountry, true, 6},
	{MatchCountry, false, 3},
}

type normalizedEntry struct {
	name, city, country string
}

func (n normalizedEntry) field(m MatchType) string {
	switch m {
	case MatchName:
		return n.name
	case MatchCity:
		return n.city
	default:
		return n.country
	}
}

// Score returns the score and match type of e for an already normalized
// query. A zero score means no rule applied.
func Score(e Entry, normalizedQuery string) (int, MatchType) {
	if normalizedQuery == "" {
		return 0, ""
	}
	n := normalizedEntry{
		name:    textnorm.Normalize(e.Name),
		city:    textnorm.Normalize(e.City),
		country: textnorm.Normalize(e.Country),
	}
	for _, r := range rules {
		value := n.field(r.field)
		if value == "" {
			continue
		}
		if r.prefix && strings.HasPrefix(value, normalizedQuery) {
			return r.score, r.field
		}
		if !r.prefix && strings.Contains(value, normalizedQuery) {
			return r.score, r.field
		}
	}
	return 0, ""
}

// Rank scores every entry against query and returns at most maxResults
// suggestions, best first. Ties keep gazetteer order. maxResults <= 0 uses
// DefaultMaxResults.
func Rank(query string, gazetteer []Entry, maxResults int) []Suggestion {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	q := textnorm.Normalize(query)
	if q == "" {
		return []Suggestion{}
	}

	out := make([]Suggestion, 0)
	for _, e := range gazetteer {
		score, match := Score(e, q)
		if score == 0 {
			continue
		}
		out = append(out, Suggestion{Entry: e, MatchType: match, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}
