package places

import "sync"

// Store is the in-memory mirror of one user's collection. It is written only
// by snapshot delivery through ReplaceAll.
type Store struct {
	mu        sync.RWMutex
	places    []Place
	index     map[string]int
	loaded    bool
	observers map[int]func([]Place)
	nextObsID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		index:     map[string]int{},
		observers: map[int]func([]Place){},
	}
}

// ReplaceAll swaps the whole collection for snapshot and notifies observers.
func (s *Store) ReplaceAll(snapshot []Place) {
	next := make([]Place, len(snapshot))
	copy(next, snapshot)
	index := make(map[string]int, len(next))
	for i, p := range next {
		index[p.ID] = i
	}

	s.mu.Lock()
	s.places = next
	s.index = index
	s.loaded = true
	observers := make([]func([]Place), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(s.All())
	}
}

// All returns a copy of the collection in snapshot order.
func (s *Store) All() []Place {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Place, len(s.places))
	copy(out, s.places)
	return out
}

// ByID looks a place up by id.
func (s *Store) ByID(id string) (Place, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Place{}, false
	}
	return s.places[i], true
}

// Len returns the number of places held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.places)
}

// Loaded reports whether at least one snapshot has been delivered.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Subscribe registers fn to receive every future snapshot. The returned
// function removes the registration.
func (s *Store) Subscribe(fn func([]Place)) func() {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}
