// Package sigcache implements the thought-signature continuity cache:
// a two-tier store, keyed by tool_call_id, that lets the proxy
// re-attach upstream-issued opaque thought signatures to later
// tool-call turns after the downstream client has stripped them from
// history.
package sigcache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is one cached signature.
type Entry struct {
	Signature  string
	ThoughtText string
	Timestamp  time.Time
}

// DurableStore is the persistence contract the L1 front writes through
// to. Production wiring supplies a modernc.org/sqlite-backed
// implementation (see store_sqlite.go); tests supply an in-memory one.
type DurableStore interface {
	Get(id string) (Entry, bool)
	Put(id string, e Entry) error
	Delete(ids []string) error
	Len() (int, error)
	// Sweep deletes all entries with Timestamp older than cutoff and
	// returns how many were removed.
	Sweep(cutoff time.Time) (int, error)
	// EvictOldest removes the oldest n entries by Timestamp.
	EvictOldest(n int) error
	Close() error
}

const (
	l1Capacity      = 1000
	durableCapacity = 10000
	ttl             = time.Hour
	sweepInterval   = 10 * time.Minute
)

// l1Node is one node of the insertion-ordered L1 ring.
type l1Node struct {
	id    string
	entry Entry
}

// Cache is the process-global signature cache: an in-memory L1 front
// (bounded, insertion-order eviction) over a durable store (bounded,
// oldest-decile eviction, TTL-swept). Safe for concurrent use by multiple
// in-flight request goroutines; writes are idempotent last-write-wins,
// so no cross-request ordering is required.
type Cache struct {
	mu      sync.Mutex
	l1      map[string]*list.Element
	order   *list.List // front = oldest
	durable DurableStore

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Cache over the given durable store and starts the
// background TTL sweep (once immediately, then every 10 minutes).
func New(durable DurableStore) *Cache {
	c := &Cache{
		l1:      make(map[string]*list.Element),
		order:   list.New(),
		durable: durable,
		stopCh:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.sweepLoop()
	return c
}

// Store records a signature for id, writing through to both tiers.
func (c *Cache) Store(id, signature, thoughtText string) error {
	e := Entry{Signature: signature, ThoughtText: thoughtText, Timestamp: time.Now()}

	c.mu.Lock()
	c.l1Put(id, e)
	c.mu.Unlock()

	if n, err := c.durable.Len(); err == nil && n >= durableCapacity {
		_ = c.durable.EvictOldest(durableCapacity / 10)
	}
	return c.durable.Put(id, e)
}

// Get returns the cached entry for id, checking L1 first and falling
// back to the durable store (populating L1 on a durable hit). A read hit
// does not reorder the L1 ring: eviction stays purely insertion-order,
// not access-order.
func (c *Cache) Get(id string) (Entry, bool) {
	c.mu.Lock()
	if el, ok := c.l1[id]; ok {
		e := el.Value.(*l1Node).entry
		c.mu.Unlock()
		return e, true
	}
	c.mu.Unlock()

	e, ok := c.durable.Get(id)
	if !ok {
		return Entry{}, false
	}
	c.mu.Lock()
	c.l1Put(id, e)
	c.mu.Unlock()
	return e, true
}

// Has reports whether id is cached in either tier.
func (c *Cache) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// Size returns the durable store's entry count.
func (c *Cache) Size() int {
	n, err := c.durable.Len()
	if err != nil {
		return 0
	}
	return n
}

// Clear empties both tiers.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.l1 = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	if n, err := c.durable.Len(); err == nil && n > 0 {
		_, _ = c.durable.Sweep(time.Now().Add(24 * time.Hour)) // everything is "older" than now+24h
	}
}

// Destroy stops the sweep goroutine and closes the durable store.
func (c *Cache) Destroy() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return c.durable.Close()
}

// l1Put inserts/updates id in L1, evicting the oldest of its 1000
// entries in insertion order if the cache is at capacity. Must be
// called with c.mu held.
func (c *Cache) l1Put(id string, e Entry) {
	if el, ok := c.l1[id]; ok {
		el.Value.(*l1Node).entry = e
		c.order.MoveToBack(el)
		return
	}
	if c.order.Len() >= l1Capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.l1, oldest.Value.(*l1Node).id)
		}
	}
	el := c.order.PushBack(&l1Node{id: id, entry: e})
	c.l1[id] = el
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	c.sweepOnce()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepOnce()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) sweepOnce() {
	cutoff := time.Now().Add(-ttl)
	removed, err := c.durable.Sweep(cutoff)
	if err != nil || removed == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		node := el.Value.(*l1Node)
		if node.entry.Timestamp.Before(cutoff) {
			c.order.Remove(el)
			delete(c.l1, node.id)
		}
		el = next
	}
}
