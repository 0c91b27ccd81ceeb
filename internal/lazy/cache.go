// Package lazy implements a keyed cache of values produced by asynchronous,
// de-duplicated loads. Readers poll without blocking; a key is loaded at most
// once and a failed key stays failed.
package lazy

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// State of a key.
type State int

const (
	Unknown State = iota
	Pending
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadFunc produces the value for a key.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// Options tune a Cache.
type Options struct {
	// Concurrency bounds simultaneous loads; 0 means unbounded.
	Concurrency int
	// OnDone is called once per key when its load finished, before waiters
	// are released.
	OnDone func(key string, err error)
}

type entry[V any] struct {
	val  V
	err  error
	done chan struct{}
}

// Cache memoizes LoadFunc results by key.
type Cache[V any] struct {
	load   LoadFunc[V]
	opts   Options
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry[V]
}

func New[V any](load LoadFunc[V], opts Options) *Cache[V] {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[V]{
		load:    load,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry[V]),
	}
	if opts.Concurrency > 0 {
		c.sem = semaphore.NewWeighted(int64(opts.Concurrency))
	}
	return c
}

// Request starts loading key unless a load is pending or finished. It reports
// whether this call started the load. The pending marker is inserted before
// the load goroutine starts, so concurrent requests never load twice.
func (c *Cache[V]) Request(key string) bool {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return false
	}
	e := &entry[V]{done: make(chan struct{})}
	c.entries[key] = e
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(key, e)
	return true
}

func (c *Cache[V]) run(key string, e *entry[V]) {
	defer c.wg.Done()

	if c.sem != nil {
		if err := c.sem.Acquire(c.ctx, 1); err != nil {
			c.finish(key, e, *new(V), err)
			return
		}
		defer c.sem.Release(1)
	}

	v, err := c.load(c.ctx, key)
	c.finish(key, e, v, err)
}

func (c *Cache[V]) finish(key string, e *entry[V], v V, err error) {
	if c.opts.OnDone != nil {
		c.opts.OnDone(key, err)
	}

	c.mu.Lock()
	e.val, e.err = v, err
	close(e.done)
	c.mu.Unlock()
}

// Get returns the value if key loaded successfully. It never blocks.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !isDone(e) || e.err != nil {
		var zero V
		return zero, false
	}
	return e.val, true
}

// State reports the load state of key.
func (c *Cache[V]) State(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	switch {
	case !ok:
		return Unknown
	case !isDone(e):
		return Pending
	case e.err != nil:
		return Failed
	default:
		return Ready
	}
}

// Put stores a ready value, unless the key is already known.
func (c *Cache[V]) Put(key string, v V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}
	e := &entry[V]{val: v, done: make(chan struct{})}
	close(e.done)
	c.entries[key] = e
	return true
}

// Wait requests key if needed and blocks until it finished loading.
func (c *Cache[V]) Wait(ctx context.Context, key string) (V, error) {
	c.Request(key)

	c.mu.Lock()
	e := c.entries[key]
	c.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return e.val, e.err
}

// Close cancels in-flight loads and waits for them to return.
func (c *Cache[V]) Close() {
	c.cancel()
	c.wg.Wait()
}

func isDone[V any](e *entry[V]) bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}
