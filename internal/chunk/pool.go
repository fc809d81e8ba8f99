package chunk

import (
	"sync"
	"sync/atomic"
)

// Default pool sizing.
const (
	DefaultMaxPooled = 4096
	DefaultCacheSize = 32
	DefaultBatchSize = 16
)

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Fresh    int64 // buffers allocated from the heap
	Reused   int64 // acquisitions served from a free list
	Released int64
	Pooled   int   // buffers held by the global pool
	Live     int64 // acquired and not yet released
}

// Pool recycles voxel buffers. Acquire and Release are safe for concurrent use.
// Workers that churn buffers should go through a Cache to amortise locking.
type Pool struct {
	mu        sync.Mutex
	free      []*Blocks
	maxPooled int
	closed    bool

	fresh    atomic.Int64
	reused   atomic.Int64
	released atomic.Int64
}

// NewPool creates a pool holding at most maxPooled idle buffers.
func NewPool(maxPooled int) *Pool {
	if maxPooled <= 0 {
		maxPooled = DefaultMaxPooled
	}
	return &Pool{maxPooled: maxPooled}
}

// Acquire returns a buffer with unspecified contents.
func (p *Pool) Acquire() *Blocks {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		p.reused.Add(1)
		return b
	}
	p.mu.Unlock()
	p.fresh.Add(1)
	return new(Blocks)
}

// Release hands a buffer back. After Close the buffer is dropped instead.
func (p *Pool) Release(b *Blocks) {
	if b == nil {
		return
	}
	p.released.Add(1)
	p.mu.Lock()
	if !p.closed && len(p.free) < p.maxPooled {
		p.free = append(p.free, b)
	}
	p.mu.Unlock()
}

// Close stops pooling and drops every idle buffer.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	clear(p.free)
	p.free = nil
	p.mu.Unlock()
}

// Stats returns current counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	pooled := len(p.free)
	p.mu.Unlock()
	fresh, reused, released := p.fresh.Load(), p.reused.Load(), p.released.Load()
	return PoolStats{
		Fresh:    fresh,
		Reused:   reused,
		Released: released,
		Pooled:   pooled,
		Live:     fresh + reused - released,
	}
}

// takeBatch moves up to n buffers from the global list into dst.
func (p *Pool) takeBatch(dst []*Blocks, n int) []*Blocks {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.free) {
		n = len(p.free)
	}
	start := len(p.free) - n
	dst = append(dst, p.free[start:]...)
	clear(p.free[start:])
	p.free = p.free[:start]
	return dst
}

// putBatch returns buffers to the global list, dropping any overflow.
func (p *Pool) putBatch(bs []*Blocks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	room := p.maxPooled - len(p.free)
	if room < len(bs) {
		bs = bs[:max(room, 0)]
	}
	p.free = append(p.free, bs...)
}

// Cache is a per-worker front for a Pool. It is not safe for concurrent use;
// each worker goroutine owns one.
type Cache struct {
	pool  *Pool
	items []*Blocks
	size  int
	batch int
}

// NewCache creates a cache holding up to size buffers, moving them to and
// from the pool in batches.
func (p *Pool) NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	batch := min(DefaultBatchSize, size)
	return &Cache{
		pool:  p,
		items: make([]*Blocks, 0, size+batch),
		size:  size,
		batch: batch,
	}
}

// Acquire returns a buffer, refilling from the pool when the cache is empty.
func (c *Cache) Acquire() *Blocks {
	if len(c.items) == 0 {
		c.items = c.pool.takeBatch(c.items, c.batch)
	}
	if n := len(c.items); n > 0 {
		b := c.items[n-1]
		c.items[n-1] = nil
		c.items = c.items[:n-1]
		c.pool.reused.Add(1)
		return b
	}
	c.pool.fresh.Add(1)
	return new(Blocks)
}

// Release keeps the buffer locally, spilling a batch to the pool when full.
func (c *Cache) Release(b *Blocks) {
	if b == nil {
		return
	}
	c.pool.released.Add(1)
	if c.pool.isClosed() {
		return
	}
	c.items = append(c.items, b)
	if len(c.items) > c.size {
		start := len(c.items) - c.batch
		c.pool.putBatch(c.items[start:])
		clear(c.items[start:])
		c.items = c.items[:start]
	}
}

// Len returns the number of locally cached buffers.
func (c *Cache) Len() int {
	return len(c.items)
}

// Flush returns every cached buffer to the pool.
func (c *Cache) Flush() {
	c.pool.putBatch(c.items)
	clear(c.items)
	c.items = c.items[:0]
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
