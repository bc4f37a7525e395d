// ABOUTME: Bounded TTL set of recently seen keys
// ABOUTME: Backs the Matrix event filter so replayed or redelivered events run once

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL and DefaultSize suit a single bot's message rate.
const (
	DefaultTTL  = 10 * time.Minute
	DefaultSize = 4096
)

type entry[K comparable] struct {
	key  K
	seen time.Time
}

// Cache remembers keys for ttl, holding at most maxSize of them. The oldest
// key is dropped first when full. Expired keys are pruned lazily on Seen, so
// no background goroutine is needed.
type Cache[K comparable] struct {
	mu      sync.Mutex
	index   map[K]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a Cache. Non-positive arguments fall back to the defaults.
func New[K comparable](ttl time.Duration, maxSize int) *Cache[K] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &Cache[K]{
		index:   make(map[K]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key was recorded within the TTL, and records it if
// not. The check and the mark happen under one lock.
func (c *Cache[K]) Seen(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)

	if _, ok := c.index[key]; ok {
		return true
	}

	if c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&entry[K]{key: key, seen: now})
	return false
}

// Len returns the number of live keys.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.now())
	return c.order.Len()
}

// pruneLocked drops expired keys from the front. Keys are inserted in time
// order, so the scan stops at the first live one.
func (c *Cache[K]) pruneLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		e := front.Value.(*entry[K])
		if now.Sub(e.seen) < c.ttl {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache[K]) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e := c.order.Remove(el).(*entry[K])
	delete(c.index, e.key)
}
