package places

import (
	"context"
	"sync"
	"time"
)

// Loader fetches the full, name-ordered collection of a user.
type Loader func(ctx context.Context, userID int64) ([]Place, error)

type hubEntry struct {
	store  *Store
	loadMu sync.Mutex

	// guarded by Hub.mu
	holds    int
	lastUsed time.Time
}

// Hub keeps one Store per user and refreshes it from the Loader. Stores are
// shared by every session of the same user and are only released by Sweep.
type Hub struct {
	load Loader

	mu      sync.Mutex
	entries map[int64]*hubEntry
}

// NewHub returns a hub that fills stores through load.
func NewHub(load Loader) *Hub {
	return &Hub{load: load, entries: map[int64]*hubEntry{}}
}

func (h *Hub) entry(userID int64, touch bool) *hubEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[userID]
	if !ok {
		e = &hubEntry{store: NewStore(), lastUsed: time.Now()}
		h.entries[userID] = e
	}
	if touch {
		e.lastUsed = time.Now()
	}
	return e
}

// Store returns the user's store, loading the first snapshot if needed.
func (h *Hub) Store(ctx context.Context, userID int64) (*Store, error) {
	return h.ensureLoaded(ctx, userID, h.entry(userID, true))
}

// Hold is Store for long-lived readers such as websockets. The store is not
// swept while held; release must be called once the reader is gone.
func (h *Hub) Hold(ctx context.Context, userID int64) (*Store, func(), error) {
	h.mu.Lock()
	e, ok := h.entries[userID]
	if !ok {
		e = &hubEntry{store: NewStore()}
		h.entries[userID] = e
	}
	e.holds++
	e.lastUsed = time.Now()
	h.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			h.mu.Lock()
			e.holds--
			e.lastUsed = time.Now()
			h.mu.Unlock()
		})
	}

	store, err := h.ensureLoaded(ctx, userID, e)
	if err != nil {
		release()
		return nil, nil, err
	}
	return store, release, nil
}

func (h *Hub) ensureLoaded(ctx context.Context, userID int64, e *hubEntry) (*Store, error) {
	if e.store.Loaded() {
		return e.store, nil
	}
	if err := h.refreshEntry(ctx, userID, e); err != nil {
		return nil, err
	}
	return e.store, nil
}

// Refresh loads a new snapshot and delivers it with ReplaceAll. Refreshes of
// one user run one at a time, so the last one to finish saw the newest data.
// On error the store keeps its previous snapshot.
func (h *Hub) Refresh(ctx context.Context, userID int64) error {
	return h.refreshEntry(ctx, userID, h.entry(userID, false))
}

func (h *Hub) refreshEntry(ctx context.Context, userID int64, e *hubEntry) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	snapshot, err := h.load(ctx, userID)
	if err != nil {
		return err
	}
	e.store.ReplaceAll(snapshot)
	return nil
}

// Tracked reports whether the hub holds a store for the user.
func (h *Hub) Tracked(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.entries[userID]
	return ok
}

// Sweep forgets stores that are not held and were last used before
// now-idle. It returns the evicted user ids.
func (h *Hub) Sweep(idle time.Duration, now time.Time) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var evicted []int64
	for id, e := range h.entries {
		if e.holds > 0 || now.Sub(e.lastUsed) < idle {
			continue
		}
		delete(h.entries, id)
		evicted = append(evicted, id)
	}
	return evicted
}

// Users returns the ids of every tracked user.
func (h *Hub) Users() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, 0, len(h.entries))
	for id := range h.entries {
		out = append(out, id)
	}
	return out
}
