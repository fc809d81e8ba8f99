package streaming

import (
	"sync"

	"github.com/Faultbox/voxelstream/internal/chunk"
)

// fifo is a mutex-guarded first-in first-out queue.
type fifo[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *fifo[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// popN appends up to n items to dst in arrival order. n <= 0 takes everything.
func (q *fifo[T]) popN(dst []T, n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	dst = append(dst, q.items[:n]...)
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	return dst
}

func (q *fifo[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// unloadQueue collects coordinates marked for eviction, once each.
type unloadQueue struct {
	mu     sync.Mutex
	items  []chunk.Coord
	marked map[chunk.Coord]struct{}
}

func newUnloadQueue() *unloadQueue {
	return &unloadQueue{marked: make(map[chunk.Coord]struct{})}
}

func (q *unloadQueue) push(pos chunk.Coord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.marked[pos]; ok {
		return false
	}
	q.marked[pos] = struct{}{}
	q.items = append(q.items, pos)
	return true
}

func (q *unloadQueue) drain(dst []chunk.Coord) []chunk.Coord {
	q.mu.Lock()
	defer q.mu.Unlock()
	dst = append(dst, q.items...)
	q.items = q.items[:0]
	clear(q.marked)
	return dst
}

func (q *unloadQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
