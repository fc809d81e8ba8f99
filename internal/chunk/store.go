package chunk

import "sync"

// Entry is a coordinate and a retained chunk handle.
type Entry struct {
	Pos   Coord
	Chunk *Chunk
}

// Store maps coordinates to resident chunks. The store owns one reference
// to every chunk it holds.
type Store struct {
	mu     sync.RWMutex
	chunks map[Coord]*Chunk
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{chunks: make(map[Coord]*Chunk)}
}

// Insert adds c, taking over the caller's reference. A chunk previously
// stored at the same coordinate is returned with the store's reference
// transferred to the caller.
func (s *Store) Insert(c *Chunk) (previous *Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.chunks[c.Pos]
	if previous == c {
		// Same chunk inserted twice: keep a single store reference.
		c.refs.Add(-1)
		return nil
	}
	s.chunks[c.Pos] = c
	return previous
}

// Erase removes the chunk at pos and transfers the store's reference to the caller.
func (s *Store) Erase(pos Coord) (*Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[pos]
	if ok {
		delete(s.chunks, pos)
	}
	return c, ok
}

// TryGet returns a retained handle to the chunk at pos. The caller must Release it.
func (s *Store) TryGet(pos Coord) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[pos]
	if !ok {
		return nil, false
	}
	return c.Retain(), true
}

// Contains reports whether a chunk is resident at pos.
func (s *Store) Contains(pos Coord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[pos]
	return ok
}

// Holds reports whether c is the chunk currently resident at its coordinate.
func (s *Store) Holds(c *Chunk) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[c.Pos] == c
}

// Len returns the number of resident chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Snapshot returns every resident chunk with a retained handle.
// Release the handles with ReleaseEntries.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.chunks))
	for pos, c := range s.chunks {
		out = append(out, Entry{Pos: pos, Chunk: c.Retain()})
	}
	return out
}

// Drain empties the store and transfers every reference to the caller.
func (s *Store) Drain() []*Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	clear(s.chunks)
	return out
}

// ReleaseEntries drops the handles taken by Snapshot.
func ReleaseEntries(entries []Entry) {
	for _, e := range entries {
		e.Chunk.Release()
	}
}

// Set is a concurrent set of coordinates.
type Set struct {
	mu sync.Mutex
	m  map[Coord]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{m: make(map[Coord]struct{})}
}

// Add inserts pos and reports whether it was absent.
func (s *Set) Add(pos Coord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[pos]; ok {
		return false
	}
	s.m[pos] = struct{}{}
	return true
}

// Remove deletes pos and reports whether it was present.
func (s *Set) Remove(pos Coord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[pos]; !ok {
		return false
	}
	delete(s.m, pos)
	return true
}

// Contains reports whether pos is in the set.
func (s *Set) Contains(pos Coord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[pos]
	return ok
}

// Len returns the set size.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
