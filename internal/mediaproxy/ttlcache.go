package mediaproxy

import (
	"sync"
	"time"
)

// Cache is the key-value contract the resolver needs.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Has(key K) bool
	Set(key K, value V)
	Delete(key K)
}

type ttlItem[V any] struct {
	value V
	timer Timer
	gen   uint64
}

// TTLCache is a map with sliding per-key expiration: every hit and every Set
// pushes the key's deadline to now+expiration. Idle keys are evicted by their
// own timer. There is no size bound.
type TTLCache[K comparable, V any] struct {
	expiration time.Duration
	clock      Clock

	mu     sync.Mutex
	items  map[K]*ttlItem[V]
	gen    uint64
	closed bool

	onEvict func(K)
}

// NewTTLCache returns an empty cache. A nil clock means SystemClock.
func NewTTLCache[K comparable, V any](expiration time.Duration, clock Clock) *TTLCache[K, V] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TTLCache[K, V]{
		expiration: expiration,
		clock:      clock,
		items:      map[K]*ttlItem[V]{},
	}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.touchLocked(key, it)
	return it.value, true
}

func (c *TTLCache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return false
	}
	c.touchLocked(key, it)
	return true
}

// Set stores value and re-arms the key's single timer.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	it, ok := c.items[key]
	if !ok {
		it = &ttlItem[V]{}
		c.items[key] = it
	}
	it.value = value
	c.touchLocked(key, it)
}

func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return
	}
	if it.timer != nil {
		it.timer.Stop()
	}
	delete(c.items, key)
}

// Len reports the number of live keys.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear drops every key and cancels its timer.
func (c *TTLCache[K, V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	for _, it := range c.items {
		if it.timer != nil {
			it.timer.Stop()
		}
	}
	c.items = map[K]*ttlItem[V]{}
	return n
}

// Close cancels all pending timers. The cache rejects writes afterwards.
func (c *TTLCache[K, V]) Close() {
	c.Clear()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// touchLocked must be called with c.mu held.
func (c *TTLCache[K, V]) touchLocked(key K, it *ttlItem[V]) {
	if c.closed {
		return
	}
	if it.timer != nil {
		it.timer.Stop()
	}
	c.gen++
	gen := c.gen
	it.gen = gen
	it.timer = c.clock.AfterFunc(c.expiration, func() { c.expire(key, gen) })
}

// expire evicts key unless it was touched again after this timer was armed.
// A stopped timer may still run if it had already fired when Stop was called.
func (c *TTLCache[K, V]) expire(key K, gen uint64) {
	c.mu.Lock()
	it, ok := c.items[key]
	if !ok || it.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.items, key)
	onEvict := c.onEvict
	c.mu.Unlock()
	if onEvict != nil {
		onEvict(key)
	}
}
