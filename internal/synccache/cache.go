package synccache

import (
	"context"
	"sync"

	"commune-chat/pkg/logger"
)

// Key identifies one cached query: a query kind plus its rendered parameters,
// e.g. {Kind: "messages", Arg: "<conversation id>"}.
type Key struct {
	Kind string
	Arg  string
}

// FetchFunc loads the query result from the durable store.
type FetchFunc func(ctx context.Context) (any, error)

// Cache is a reactive get-or-fetch cache. Entries are invalidated by feed
// events and refetched: immediately when somebody observes the key, lazily on
// the next Get otherwise. At most one fetch per key is in flight, and a fetch
// that completes after a newer invalidation is discarded instead of
// overwriting fresher data.
type Cache struct {
	log *logger.Logger

	mu      sync.Mutex
	entries map[Key]*entry
}

type entry struct {
	fetch FetchFunc

	value    any
	err      error
	loaded   bool
	stale    bool
	gen      uint64 // bumped by every invalidation
	inflight *flight

	observers map[int]func()
	nextObs   int
}

type flight struct {
	gen   uint64 // entry generation when the fetch started
	done  chan struct{}
	value any
	err   error
}

func New(log *logger.Logger) *Cache {
	return &Cache{
		log:     log,
		entries: make(map[Key]*entry),
	}
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{observers: make(map[int]func())}
		c.entries[key] = e
	}
	return e
}

// Get returns the cached value for key, fetching it first if the entry is
// missing or stale. Concurrent callers share one fetch.
func (c *Cache) Get(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetch = fetch

	if e.loaded && !e.stale {
		value, err := e.value, e.err
		c.mu.Unlock()
		return value, err
	}

	if fl := e.inflight; fl != nil {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.value, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fl := &flight{gen: e.gen, done: make(chan struct{})}
	e.inflight = fl
	c.mu.Unlock()

	value, err := fetch(ctx)
	c.complete(key, fl, value, err)
	return value, err
}

// complete records a finished fetch. Results fetched under an old generation
// are dropped; if the key is still observed a follow-up fetch is scheduled so
// observers converge on fresh data.
func (c *Cache) complete(key Key, fl *flight, value any, err error) {
	fl.value, fl.err = value, err

	c.mu.Lock()
	e := c.entries[key]
	e.inflight = nil

	refetch := false
	var notify []func()
	if fl.gen == e.gen {
		e.value, e.err = value, err
		e.loaded = true
		e.stale = err != nil // errors are surfaced but not cached
		if err == nil {
			for _, fn := range e.observers {
				notify = append(notify, fn)
			}
		}
	} else {
		// Invalidated while in flight: the rows may have changed after this
		// fetch read them.
		refetch = len(e.observers) > 0 && e.fetch != nil
	}
	c.mu.Unlock()

	close(fl.done)
	for _, fn := range notify {
		fn()
	}
	if refetch {
		c.refetchAsync(key)
	}
}

// Invalidate marks the key stale. Observed keys refetch right away;
// unobserved keys wait for their next Get.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.gen++
	e.stale = true
	refetch := len(e.observers) > 0 && e.fetch != nil && e.inflight == nil
	c.mu.Unlock()

	if refetch {
		c.refetchAsync(key)
	}
}

// InvalidateObserved marks every observed key stale. Called after the feed
// reconnects, when events may have been missed.
func (c *Cache) InvalidateObserved() {
	c.mu.Lock()
	var keys []Key
	for key, e := range c.entries {
		if len(e.observers) > 0 {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.Invalidate(key)
	}
}

func (c *Cache) refetchAsync(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.inflight != nil || !e.stale || e.fetch == nil {
		c.mu.Unlock()
		return
	}
	fl := &flight{gen: e.gen, done: make(chan struct{})}
	e.inflight = fl
	fetch := e.fetch
	c.mu.Unlock()

	go func() {
		value, err := fetch(context.Background())
		if err != nil {
			c.log.Warnf("refetch %s/%s: %v", key.Kind, key.Arg, err)
		}
		c.complete(key, fl, value, err)
	}()
}

// Observe registers a callback fired after every successful refresh of key.
// The returned cancel removes the observer; it is safe to call repeatedly.
func (c *Cache) Observe(key Key, fn func()) (cancel func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.nextObs++
	id := e.nextObs
	e.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(e.observers, id)
			c.mu.Unlock()
		})
	}
}

// Peek returns the cached value without fetching. Used by the event stream to
// decide whether a consumer needs a wake-up.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.loaded || e.stale {
		return nil, false
	}
	return e.value, true
}
