// Package workqueue runs prioritised tasks on a fixed set of worker goroutines.
// Each worker owns a scratch value that is handed to every task it runs, so
// tasks can reuse large buffers without synchronisation.
package workqueue

import (
	"container/heap"
	"sync"
)

// Task is a unit of work executed with the running worker's scratch value.
type Task[S any] func(scratch S)

// Option configures a Pool.
type Option[S any] func(*Pool[S])

// WithOnExit registers a hook that runs on each worker's scratch as the worker exits.
func WithOnExit[S any](fn func(S)) Option[S] {
	return func(p *Pool[S]) { p.onExit = fn }
}

// Pool is a priority work queue. Lower priority values run first; equal
// priorities run in submission order.
type Pool[S any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tasks    taskHeap[S]
	seq      uint64
	stopping bool
	active   int

	onExit func(S)
	wg     sync.WaitGroup
}

// New starts workers goroutines. newScratch is called once per worker with its index.
func New[S any](workers int, newScratch func(id int) S, opts ...Option[S]) *Pool[S] {
	if workers < 1 {
		workers = 1
	}
	p := &Pool[S]{}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(newScratch(i))
	}
	return p
}

// Enqueue submits a task. It never blocks and returns false once shutdown began.
func (p *Pool[S]) Enqueue(priority int, fn Task[S]) bool {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return false
	}
	p.seq++
	heap.Push(&p.tasks, item[S]{priority: priority, seq: p.seq, run: fn})
	p.mu.Unlock()
	p.cond.Signal()
	return true
}

// Len returns the number of queued tasks, excluding running ones.
func (p *Pool[S]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Active returns the number of tasks currently running.
func (p *Pool[S]) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Shutdown stops accepting work, lets workers drain the queue and waits for
// all of them to exit. Tasks are expected to check their own relevance.
func (p *Pool[S]) Shutdown() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool[S]) worker(scratch S) {
	defer p.wg.Done()
	if p.onExit != nil {
		defer p.onExit(scratch)
	}
	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.stopping {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 {
			p.mu.Unlock()
			return
		}
		it := heap.Pop(&p.tasks).(item[S])
		p.active++
		p.mu.Unlock()

		it.run(scratch)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

type item[S any] struct {
	priority int
	seq      uint64
	run      Task[S]
}

type taskHeap[S any] []item[S]

func (h taskHeap[S]) Len() int { return len(h) }

func (h taskHeap[S]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap[S]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap[S]) Push(x any) { *h = append(*h, x.(item[S])) }

func (h *taskHeap[S]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = item[S]{}
	*h = old[:n-1]
	return it
}
