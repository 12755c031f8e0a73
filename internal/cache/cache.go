// Package cache implements the per-provider response cache: a FIFO bounded
// by entry count plus a single trailing-edge timer that pops the oldest entry
// once insertions go quiet.
package cache

import (
	"container/list"
	"sync"
	"time"

	"music-enricher/internal/metrics"
)

const (
	DefaultMaxEntries = 30
	DefaultWindow     = 60 * time.Second
)

// Eviction reasons reported to metrics and OnEvict.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
)

// Config describes one provider cache.
type Config struct {
	Name       string
	MaxEntries int
	Window     time.Duration
	// OnEvict, if set, is called without the lock held.
	OnEvict func(key, reason string)
}

type entry struct {
	key       string
	value     any
	insertion uint64
}

// Cache maps canonical request keys to parsed responses. Hits do not change
// eviction order.
type Cache struct {
	cfg     Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	seq     uint64
	timer   *time.Timer
	gen     uint64
	closed  bool
}

// New creates an empty cache.
func New(cfg Config, m *metrics.Metrics) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Cache{
		cfg:     cfg,
		metrics: m,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached value for key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	el, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		c.metrics.CacheMiss(c.cfg.Name)
		return nil, false
	}
	c.metrics.CacheHit(c.cfg.Name)
	return el.Value.(*entry).value, true
}

// Peek is Get without recording a hit or miss.
func (c *Cache) Peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*entry).value, true
}

// Set stores value under key as the newest entry, evicting the oldest entry
// if the cap is exceeded, and re-arms the quiescence timer.
func (c *Cache) Set(key string, value any) {
	var evicted []string

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	c.seq++
	c.entries[key] = c.order.PushBack(&entry{key: key, value: value, insertion: c.seq})
	for c.order.Len() > c.cfg.MaxEntries {
		evicted = append(evicted, c.popOldestLocked())
	}
	c.armLocked()
	c.mu.Unlock()

	for _, k := range evicted {
		c.evicted(k, EvictCapacity)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns keys from oldest to newest.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Close stops the timer and drops all entries.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *Cache) popOldestLocked() string {
	front := c.order.Front()
	if front == nil {
		return ""
	}
	e := c.order.Remove(front).(*entry)
	delete(c.entries, e.key)
	return e.key
}

// armLocked replaces the single pending timer. The generation counter makes a
// superseded callback that already fired a no-op.
func (c *Cache) armLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.cfg.Window, func() { c.expire(gen) })
}

func (c *Cache) expire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	key := c.popOldestLocked()
	if c.order.Len() > 0 {
		c.armLocked()
	} else {
		c.timer = nil
	}
	c.mu.Unlock()

	if key != "" {
		c.evicted(key, EvictExpired)
	}
}

func (c *Cache) evicted(key, reason string) {
	c.metrics.CacheEvicted(c.cfg.Name, reason)
	if c.cfg.OnEvict != nil {
		c.cfg.OnEvict(key, reason)
	}
}
