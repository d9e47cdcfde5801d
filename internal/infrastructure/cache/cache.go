package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
)

type Config struct {
	MaxEntries    int
	TTL           time.Duration
	SweepInterval time.Duration
	// OnEvent publishes cache events ("hit", "miss", "eviction", "expired")
	// to the metrics layer. Optional; must not block.
	OnEvent func(event string)
}

func DefaultConfig() Config {
	return Config{
		MaxEntries:    1000,
		TTL:           24 * time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

type entry struct {
	key         string
	value       domain.ExtractionResult
	createdAt   time.Time
	accessCount uint64
	size        int
}

type inflightCall struct {
	done  chan struct{}
	value domain.ExtractionResult
	err   error
}

// Cache is a content-addressed extraction cache: fingerprint-keyed, bounded
// by entry count with LRU eviction, and TTL-bounded with expired entries
// treated as absent on read. GetOrCompute holds at most one in-flight compute
// per fingerprint; concurrent callers share the first caller's result.
type Cache struct {
	cfg Config

	mu       sync.Mutex
	order    *list.List
	items    map[string]*list.Element
	inflight map[string]*inflightCall

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64

	stopSweep chan struct{}
	sweepDone chan struct{}
}

func New(cfg Config) *Cache {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	c := &Cache{
		cfg:       cfg,
		order:     list.New(),
		items:     make(map[string]*list.Element),
		inflight:  make(map[string]*inflightCall),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) Get(fingerprint string) (domain.ExtractionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(fingerprint, time.Now())
}

// lookup must be called with c.mu held.
func (c *Cache) lookup(fingerprint string, now time.Time) (domain.ExtractionResult, bool) {
	elem, ok := c.items[fingerprint]
	if !ok {
		c.misses++
		c.publish("miss")
		return domain.ExtractionResult{}, false
	}
	ent := elem.Value.(*entry)
	if now.Sub(ent.createdAt) >= c.cfg.TTL {
		c.removeElement(elem)
		c.expired++
		c.misses++
		c.publish("expired")
		c.publish("miss")
		return domain.ExtractionResult{}, false
	}
	ent.accessCount++
	c.order.MoveToFront(elem)
	c.hits++
	c.publish("hit")
	return ent.value, true
}

func (c *Cache) GetOrCompute(ctx context.Context, fingerprint string, compute func(context.Context) (domain.ExtractionResult, error)) (domain.ExtractionResult, bool, error) {
	c.mu.Lock()
	if value, ok := c.lookup(fingerprint, time.Now()); ok {
		c.mu.Unlock()
		return value, true, nil
	}

	if call, ok := c.inflight[fingerprint]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.value, true, call.err
		case <-ctx.Done():
			return domain.ExtractionResult{}, false, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	c.inflight[fingerprint] = call
	c.mu.Unlock()

	value, err := compute(ctx)

	c.mu.Lock()
	delete(c.inflight, fingerprint)
	if err == nil {
		c.store(fingerprint, value)
	}
	c.mu.Unlock()

	call.value = value
	call.err = err
	close(call.done)

	return value, false, err
}

// store must be called with c.mu held.
func (c *Cache) store(fingerprint string, value domain.ExtractionResult) {
	if elem, ok := c.items[fingerprint]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.createdAt = time.Now()
		ent.size = approximateSize(value)
		c.order.MoveToFront(elem)
		return
	}

	for len(c.items) >= c.cfg.MaxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
		c.publish("eviction")
	}

	ent := &entry{
		key:       fingerprint,
		value:     value,
		createdAt: time.Now(),
		size:      approximateSize(value),
	}
	c.items[fingerprint] = c.order.PushFront(ent)
}

func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[fingerprint]; ok {
		c.removeElement(elem)
	}
}

func (c *Cache) Stats() ports.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ports.CacheStats{
		Entries:   len(c.items),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}

// Close stops the background sweep. Entries stay readable until GC'd with the
// cache itself.
func (c *Cache) Close() {
	close(c.stopSweep)
	<-c.sweepDone
}

func (c *Cache) sweepLoop() {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepExpired(time.Now())
		}
	}
}

func (c *Cache) sweepExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		ent := elem.Value.(*entry)
		if now.Sub(ent.createdAt) >= c.cfg.TTL {
			c.removeElement(elem)
			c.expired++
			c.publish("expired")
		}
		elem = prev
	}
}

// removeElement must be called with c.mu held.
func (c *Cache) removeElement(elem *list.Element) {
	ent := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.items, ent.key)
}

func (c *Cache) publish(event string) {
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(event)
	}
}

func approximateSize(value domain.ExtractionResult) int {
	return len(value.RawResponse) +
		len(value.Fingerprint) +
		8*(len(value.SalesAmounts)+len(value.PurchaseAmounts)) +
		64
}
