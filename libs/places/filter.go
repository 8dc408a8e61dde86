package places

import (
	"errors"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Filter sentinels.
const (
	AllCountries      = "all"
	VisitedAll        = "all"
	VisitedOnly       = "visited"
	VisitedNotVisited = "notvisited"
)

var ErrInvalidFilter = errors.New("invalid visited filter")

// FilterState selects which places a view shows.
type FilterState struct {
	Country string `json:"country"`
	Visited string `json:"visited"`
}

// DefaultFilter shows everything.
func DefaultFilter() FilterState {
	return FilterState{Country: AllCountries, Visited: VisitedAll}
}

// ParseFilterState turns raw query values into a FilterState. Blank values
// mean "all". The country value is kept byte-for-byte.
func ParseFilterState(country, visited string) (FilterState, error) {
	state := DefaultFilter()
	if country != "" {
		state.Country = country
	}
	switch strings.TrimSpace(visited) {
	case "", VisitedAll:
	case VisitedOnly:
		state.Visited = VisitedOnly
	case VisitedNotVisited:
		state.Visited = VisitedNotVisited
	default:
		return FilterState{}, ErrInvalidFilter
	}
	return state, nil
}

// Match reports whether p passes both filters.
func (f FilterState) Match(p Place) bool {
	if f.Country != "" && f.Country != AllCountries {
		if p.Country != f.Country && !(p.Country == "" && f.Country == OtherBucket) {
			return false
		}
	}
	switch f.Visited {
	case VisitedOnly:
		return p.Visited
	case VisitedNotVisited:
		return !p.Visited
	}
	return true
}

// Filter keeps the places that match f, in input order.
func Filter(list []Place, f FilterState) []Place {
	out := make([]Place, 0, len(list))
	for _, p := range list {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Derive filters list and groups the survivors by country bucket. Order inside
// a bucket follows the input. An empty result is an empty, non-nil map.
func Derive(list []Place, f FilterState) map[string][]Place {
	groups := map[string][]Place{}
	for _, p := range list {
		if !f.Match(p) {
			continue
		}
		key := p.Bucket()
		groups[key] = append(groups[key], p)
	}
	return groups
}

// SortedKeys returns the bucket keys in locale-aware order.
func SortedKeys(groups map[string][]Place) []string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sortLocale(keys)
	return keys
}

// Group is one country bucket of a derived view.
type Group struct {
	Country string  `json:"country"`
	Places  []Place `json:"places"`
}

// Groups is Derive with the buckets laid out in display order.
func Groups(list []Place, f FilterState) []Group {
	derived := Derive(list, f)
	out := make([]Group, 0, len(derived))
	for _, key := range SortedKeys(derived) {
		out = append(out, Group{Country: key, Places: derived[key]})
	}
	return out
}

// Countries lists the distinct bucket keys of list in display order.
func Countries(list []Place) []string {
	seen := map[string]struct{}{}
	keys := make([]string, 0)
	for _, p := range list {
		key := p.Bucket()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sortLocale(keys)
	return keys
}

func sortLocale(keys []string) {
	// Collators are not safe for concurrent use.
	collate.New(language.Und, collate.IgnoreCase).SortStrings(keys)
}
