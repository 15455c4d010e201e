package dedup

import (
	"context"
	"slices"
	"sync"
	"time"
)

const (
	DefaultHorizon    = 3 * time.Hour
	defaultSweepBatch = 64
)

// Deduper answers whether an alert key may be emitted now. Admit must check
// and record in one atomic step.
type Deduper interface {
	Admit(ctx context.Context, key string, now time.Time) (bool, error)
}

type Entry struct {
	Key       string
	ExpiresAt time.Time
}

// Cache is an in-memory time windowed key set. Every operation takes the
// same mutex. Expiries are kept in a queue ordered by expiresAt, so Record
// evicts a bounded batch from its head and Sweep stops at the first live
// entry.
type Cache struct {
	mu      sync.Mutex
	horizon time.Duration
	entries map[string]time.Time // key -> expiresAt

	queue []Entry
	head  int

	sweepBatch int
}

type CacheOption func(c *Cache)

// WithSweepBatch bounds how many expired entries a single Record evicts.
func WithSweepBatch(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.sweepBatch = n
		}
	}
}

func NewCache(horizon time.Duration, opts ...CacheOption) *Cache {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	c := &Cache{
		horizon:    horizon,
		entries:    make(map[string]time.Time),
		sweepBatch: defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Horizon() time.Duration {
	return c.horizon
}

func (c *Cache) Seen(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seenLocked(key, now)
}

// Record sets or refreshes expiresAt = now + horizon.
func (c *Cache) Record(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(key, now)
}

// Admit returns true and records the key when it was not seen within the
// horizon. A suppressed key is not refreshed, so the window counts from the
// first emission.
func (c *Cache) Admit(_ context.Context, key string, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seenLocked(key, now) {
		return false, nil
	}
	c.recordLocked(key, now)
	return true, nil
}

// Sweep removes every entry whose expiresAt <= now and returns the count.
// It only walks the expired prefix of the queue.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(now, -1)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot copies the live entries.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]Entry, 0, len(c.entries))
	for k, exp := range c.entries {
		res = append(res, Entry{Key: k, ExpiresAt: exp})
	}
	return res
}

// Restore loads entries that are still live at now. Existing keys keep the
// later expiry.
func (c *Cache) Restore(entries []Entry, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range entries {
		if !e.ExpiresAt.After(now) {
			continue
		}
		if cur, ok := c.entries[e.Key]; ok && !e.ExpiresAt.After(cur) {
			continue
		}
		c.entries[e.Key] = e.ExpiresAt
		c.queue = append(c.queue, e)
		n++
	}
	if n > 0 {
		slices.SortStableFunc(c.queue[c.head:], compareExpiry)
	}
	return n
}

func (c *Cache) seenLocked(key string, now time.Time) bool {
	exp, ok := c.entries[key]
	return ok && exp.After(now)
}

func (c *Cache) recordLocked(key string, now time.Time) {
	c.evictLocked(now, c.sweepBatch)
	exp := now.Add(c.horizon)
	c.entries[key] = exp
	item := Entry{Key: key, ExpiresAt: exp}
	if tail := len(c.queue) - 1; tail >= c.head && c.queue[tail].ExpiresAt.After(exp) {
		// 时钟回拨, 按过期时间插入保持队列有序
		i, _ := slices.BinarySearchFunc(c.queue[c.head:], item, compareExpiry)
		c.queue = slices.Insert(c.queue, c.head+i, item)
		return
	}
	c.queue = append(c.queue, item)
}

func compareExpiry(a, b Entry) int {
	return a.ExpiresAt.Compare(b.ExpiresAt)
}

// evictLocked pops expired queue heads, at most limit of them (limit < 0 means
// no limit). A queue item is stale when the key was refreshed or restored
// later, the map is the source of truth.
func (c *Cache) evictLocked(now time.Time, limit int) int {
	removed := 0
	for c.head < len(c.queue) && (limit < 0 || removed < limit) {
		item := c.queue[c.head]
		if item.ExpiresAt.After(now) {
			break
		}
		c.queue[c.head] = Entry{}
		c.head++
		if cur, ok := c.entries[item.Key]; ok && !cur.After(now) {
			delete(c.entries, item.Key)
			removed++
		}
	}
	c.compactLocked()
	return removed
}

func (c *Cache) compactLocked() {
	if c.head == 0 || c.head < len(c.queue)/2 {
		return
	}
	n := copy(c.queue, c.queue[c.head:])
	clear(c.queue[n:])
	c.queue = c.queue[:n]
	c.head = 0
}

var _ Deduper = (*Cache)(nil)
