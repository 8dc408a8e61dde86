// Package route keeps the ordered selection of places a user wants to visit
// and turns it into a link for an external maps service.
package route

import (
	"errors"
	"sync"
)

var ErrSelectionFull = errors.New("route selection is full")

// Entry is one selected place and its 1-based position in the route.
type Entry struct {
	PlaceID string `json:"placeId"`
	Order   int    `json:"order"`
}

// Tracker holds a dense, ordered selection of place ids.
type Tracker struct {
	maxStops int

	mu  sync.Mutex
	ids []string
}

// NewTracker returns an empty tracker. maxStops <= 0 means no limit.
func NewTracker(maxStops int) *Tracker {
	return &Tracker{maxStops: maxStops}
}

// MaxStops returns the configured limit, 0 when unbounded.
func (t *Tracker) MaxStops() int {
	if t.maxStops < 0 {
		return 0
	}
	return t.maxStops
}

// Toggle removes placeID when selected and appends it otherwise. It reports
// whether the place ended up selected.
func (t *Tracker) Toggle(placeID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, id := range t.ids {
		if id == placeID {
			t.ids = append(t.ids[:i:i], t.ids[i+1:]...)
			return false, nil
		}
	}
	if t.maxStops > 0 && len(t.ids) >= t.maxStops {
		return false, ErrSelectionFull
	}
	t.ids = append(t.ids, placeID)
	return true, nil
}

// Clear empties the selection.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.ids = nil
	t.mu.Unlock()
}

// Entries returns the selection with orders 1..n.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.ids))
	for i, id := range t.ids {
		out[i] = Entry{PlaceID: id, Order: i + 1}
	}
	return out
}

// Len returns the number of selected places.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// Contains reports whether placeID is selected.
func (t *Tracker) Contains(placeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.ids {
		if id == placeID {
			return true
		}
	}
	return false
}

// Prune drops every entry for which keep returns false and closes the gaps.
// It returns the number of entries removed.
func (t *Tracker) Prune(keep func(placeID string) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.ids[:0]
	removed := 0
	for _, id := range t.ids {
		if keep(id) {
			kept = append(kept, id)
			continue
		}
		removed++
	}
	t.ids = kept
	return removed
}
