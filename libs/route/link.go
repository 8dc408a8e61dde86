package route

import (
	"errors"
	"net/url"
	"strings"

	"github.com/istadmins/RotamBenim-sub000/libs/places"
)

// DefaultDirectionsBaseURL is the Google Maps multi-stop directions endpoint.
const DefaultDirectionsBaseURL = "https://www.google.com/maps/dir/"

var ErrTooFewStops = errors.New("a route needs at least two stops")

// Lookup resolves a selected place id.
type Lookup func(placeID string) (places.Place, bool)

// Stops maps the ordered selection to one location string per stop: the
// place's geocoding hint when it has one, its "name, city, country" label
// otherwise. Entries whose place cannot be found are skipped.
func Stops(entries []Entry, lookup Lookup) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		p, ok := lookup(e.PlaceID)
		if !ok {
			continue
		}
		stop := p.GeocodeHint()
		if stop == "" {
			stop = p.Label()
		}
		if stop == "" {
			continue
		}
		out = append(out, stop)
	}
	return out
}

// DirectionsURL percent-encodes each stop as a path segment and appends them
// to base in order. Everything outside the unreserved set is escaped; the
// maps service reads a bare '+' in the path as a space.
func DirectionsURL(base string, stops []string) (string, error) {
	if len(stops) < 2 {
		return "", ErrTooFewStops
	}
	if base == "" {
		base = DefaultDirectionsBaseURL
	}
	segments := make([]string, len(stops))
	for i, stop := range stops {
		segments[i] = escapeStop(stop)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/"), nil
}

func escapeStop(stop string) string {
	return strings.ReplaceAll(url.QueryEscape(stop), "+", "%20")
}
