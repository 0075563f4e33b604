// Package cache is the read-through cache in front of the tenant directory.
//
// Entries live for TTL (negative entries for NegativeTTL), the cache holds at
// most MaxEntries keys with LRU eviction, and concurrent misses for one key
// share a single directory fetch. Fetch errors are never cached: a failing
// directory yields an error, never "not found" and never a stale "active".
package cache

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"campusgate/internal/tenant/metrics"
	"campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/sentinel"
)

// Loader is the directory access the cache reads through.
type Loader interface {
	FindByKey(ctx context.Context, key string) (*models.Tenant, error)
}

type Config struct {
	TTL          time.Duration
	NegativeTTL  time.Duration
	MaxEntries   int
	FetchTimeout time.Duration
}

// DefaultConfig matches the service defaults in internal/platform/config.
func DefaultConfig() Config {
	return Config{
		TTL:          30 * time.Second,
		NegativeTTL:  5 * time.Second,
		MaxEntries:   10_000,
		FetchTimeout: 500 * time.Millisecond,
	}
}

type entry struct {
	key       string
	tenant    models.Tenant
	found     bool
	expiresAt time.Time
}

type Cache struct {
	loader  Loader
	cfg     Config
	clock   func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front is most recently used
	byID  map[id.TenantID]string
	// generation advances on every invalidation; a fill that started under an
	// older generation must not store its result.
	generation uint64
	// inflight counts running directory fetches per key. An invalidation by
	// id cannot know the key of a tenant that was never cached, so it forgets
	// every fetch in flight.
	inflight map[string]int

	group singleflight.Group
}

type Option func(*Cache)

func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

func New(loader Loader, cfg Config, opts ...Option) *Cache {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	c := &Cache{
		loader: loader,
		cfg:    cfg,
		clock:  time.Now,
		logger: slog.Default(),
		items:  make(map[string]*list.Element),
		order:  list.New(),
		byID:   make(map[id.TenantID]string),

		inflight: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the tenant for key. Unknown keys yield sentinel.ErrNotFound;
// directory failures yield a dErrors timeout/unavailable error. If ctx ends
// first the caller abandons the wait and gets ctx.Err(); the shared fetch
// continues for other waiters.
func (c *Cache) Get(ctx context.Context, key string) (*models.Tenant, error) {
	key = strings.ToLower(key)

	if t, found, ok := c.lookup(key); ok {
		if !found {
			c.metrics.IncLookup(metrics.LookupNegativeHit)
			return nil, sentinel.ErrNotFound
		}
		c.metrics.IncLookup(metrics.LookupHit)
		return t, nil
	}
	c.metrics.IncLookup(metrics.LookupMiss)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fill(ctx, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		t := res.Val.(models.Tenant)
		return &t, nil
	}
}

func (c *Cache) lookup(key string) (*models.Tenant, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false, false
	}
	e := el.Value.(*entry)
	if !c.clock().Before(e.expiresAt) {
		c.removeLocked(el)
		return nil, false, false
	}
	c.order.MoveToFront(el)
	if !e.found {
		return nil, false, true
	}
	t := e.tenant
	return &t, true, true
}

func (c *Cache) fill(ctx context.Context, key string) (any, error) {
	gen := c.beginFill(key)
	defer c.endFill(key)

	// Detached from the first caller's cancellation so one abandoned request
	// does not fail every waiter; bounded by FetchTimeout instead.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	t, err := c.loader.FindByKey(fetchCtx, key)
	switch {
	case err == nil:
		c.metrics.ObserveDirectoryFetch("found", start)
		c.store(gen, key, *t, true)
		return *t, nil
	case errors.Is(err, sentinel.ErrNotFound):
		c.metrics.ObserveDirectoryFetch("not_found", start)
		if c.cfg.NegativeTTL > 0 {
			c.store(gen, key, models.Tenant{}, false)
		}
		return nil, sentinel.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded):
		c.metrics.ObserveDirectoryFetch("timeout", start)
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "tenant directory lookup timed out")
	default:
		c.metrics.ObserveDirectoryFetch("error", start)
		c.logger.WarnContext(ctx, "tenant directory fetch failed", "tenant_key", key, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "tenant directory unavailable")
	}
}

func (c *Cache) store(gen uint64, key string, t models.Tenant, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.metrics.IncStaleFill()
		return
	}

	ttl := c.cfg.TTL
	if !found {
		ttl = c.cfg.NegativeTTL
	}
	e := &entry{key: key, tenant: t, found: found, expiresAt: c.clock().Add(ttl)}

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	c.items[key] = c.order.PushFront(e)
	if found {
		c.byID[t.ID] = key
	}

	for c.order.Len() > c.cfg.MaxEntries {
		c.removeLocked(c.order.Back())
		c.metrics.IncEviction()
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.key)
	if e.found && c.byID[e.tenant.ID] == e.key {
		delete(c.byID, e.tenant.ID)
	}
}

func (c *Cache) beginFill(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[key]++
	return c.generation
}

func (c *Cache) endFill(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[key]--
	if c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
}

func (c *Cache) inflightKeysLocked() []string {
	keys := make([]string, 0, len(c.inflight))
	for key := range c.inflight {
		keys = append(keys, key)
	}
	return keys
}

func (c *Cache) forget(keys []string) {
	for _, key := range keys {
		c.group.Forget(key)
	}
}

// Invalidate drops key and prevents any in-flight fill from re-populating it.
func (c *Cache) Invalidate(key string) {
	key = strings.ToLower(key)
	c.mu.Lock()
	c.generation++
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	c.mu.Unlock()
	// Later callers must start a fresh fetch rather than join one that began
	// before the invalidation.
	c.group.Forget(key)
}

// InvalidateID drops the entry cached for tenantID, if any. A first fill
// still in flight may be for the same tenant, so callers arriving after this
// start a fresh fetch instead of joining one.
func (c *Cache) InvalidateID(tenantID id.TenantID) {
	c.mu.Lock()
	key, ok := c.byID[tenantID]
	c.generation++
	if ok {
		if el, exists := c.items[key]; exists {
			c.removeLocked(el)
		}
	}
	keys := c.inflightKeysLocked()
	c.mu.Unlock()
	if ok {
		c.group.Forget(key)
	}
	c.forget(keys)
}

// Purge drops every entry. Used when push invalidations may have been missed.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.generation++
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.byID = make(map[id.TenantID]string)
	keys := c.inflightKeysLocked()
	c.mu.Unlock()
	c.forget(keys)
}

// Len reports the number of cached entries, negative entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
