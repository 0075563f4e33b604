package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"campusgate/internal/tenant/models"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/sentinel"
	"campusgate/pkg/testutil"
)

type fakeLoader struct {
	mu      sync.Mutex
	tenants map[string]models.Tenant
	err     error
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
}

func newFakeLoader(tenants ...*models.Tenant) *fakeLoader {
	f := &fakeLoader{tenants: make(map[string]models.Tenant)}
	for _, t := range tenants {
		f.tenants[t.Key] = *t
	}
	return f
}

func (f *fakeLoader) FindByKey(ctx context.Context, key string) (*models.Tenant, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tenants[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &t, nil
}

func (f *fakeLoader) set(t *models.Tenant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[t.Key] = *t
}

// CacheSuite covers the tenant cache contract: read-through with TTL,
// bounded size, fill de-duplication, invalidation and fail-closed errors.
type CacheSuite struct {
	suite.Suite
	now    time.Time
	loader *fakeLoader
	demo   *models.Tenant
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.now = testutil.FixedNow
	s.demo = testutil.NewTenant("demo-school").Build()
	s.loader = newFakeLoader(s.demo)
}

func (s *CacheSuite) clock() time.Time { return s.now }

func (s *CacheSuite) newCache(cfg Config) *Cache {
	return New(s.loader, cfg, WithClock(s.clock))
}

func (s *CacheSuite) TestReadThrough() {
	c := s.newCache(DefaultConfig())
	ctx := context.Background()

	first, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)
	s.Equal(s.demo.ID, first.ID)

	second, err := c.Get(ctx, "DEMO-SCHOOL")
	s.Require().NoError(err)
	s.Equal(s.demo.ID, second.ID)
	s.Equal(int32(1), s.loader.calls.Load(), "second lookup must be served from cache")
}

func (s *CacheSuite) TestTTLExpiry() {
	c := s.newCache(Config{TTL: 30 * time.Second, MaxEntries: 10, FetchTimeout: time.Second})
	ctx := context.Background()

	_, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)

	suspended := *s.demo
	suspended.Status = models.TenantStatusSuspended
	s.loader.set(&suspended)

	s.now = s.now.Add(29 * time.Second)
	cached, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusActive, cached.Status)

	s.now = s.now.Add(time.Second)
	fresh, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusSuspended, fresh.Status, "entry must be refetched once TTL elapses")
	s.Equal(int32(2), s.loader.calls.Load())
}

func (s *CacheSuite) TestNegativeCaching() {
	c := s.newCache(Config{TTL: time.Minute, NegativeTTL: 5 * time.Second, MaxEntries: 10, FetchTimeout: time.Second})
	ctx := context.Background()

	_, err := c.Get(ctx, "unknown-school")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = c.Get(ctx, "unknown-school")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal(int32(1), s.loader.calls.Load())

	s.loader.set(testutil.NewTenant("unknown-school").Build())
	s.now = s.now.Add(5 * time.Second)
	t, err := c.Get(ctx, "unknown-school")
	s.Require().NoError(err)
	s.Equal("unknown-school", t.Key)
}

func (s *CacheSuite) TestNegativeCachingDisabled() {
	c := s.newCache(Config{TTL: time.Minute, MaxEntries: 10, FetchTimeout: time.Second})
	ctx := context.Background()

	_, _ = c.Get(ctx, "unknown-school")
	_, _ = c.Get(ctx, "unknown-school")
	s.Equal(int32(2), s.loader.calls.Load())
	s.Equal(0, c.Len())
}

func (s *CacheSuite) TestErrorsAreNeverCached() {
	c := s.newCache(DefaultConfig())
	ctx := context.Background()
	s.loader.err = errors.New("connection refused")

	_, err := c.Get(ctx, "demo-school")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.False(errors.Is(err, sentinel.ErrNotFound), "a failing directory must never look like an unknown tenant")

	s.loader.err = nil
	t, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)
	s.Equal(s.demo.ID, t.ID)
	s.Equal(int32(2), s.loader.calls.Load())
}

func (s *CacheSuite) TestFetchTimeoutIsHardFailure() {
	s.loader.block = make(chan struct{})
	defer close(s.loader.block)
	c := s.newCache(Config{TTL: time.Minute, MaxEntries: 10, FetchTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := c.Get(context.Background(), "demo-school")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Less(time.Since(start), time.Second)
	s.Equal(0, c.Len())
}

func (s *CacheSuite) TestCallerCancellationAbandonsWait() {
	s.loader.block = make(chan struct{})
	defer close(s.loader.block)
	c := s.newCache(Config{TTL: time.Minute, MaxEntries: 10, FetchTimeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "demo-school")
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *CacheSuite) TestConcurrentMissesShareOneFetch() {
	s.loader.block = make(chan struct{})
	s.loader.started = make(chan struct{}, 1)
	c := s.newCache(DefaultConfig())

	go func() {
		<-s.loader.started
		time.Sleep(100 * time.Millisecond)
		close(s.loader.block)
	}()

	result := testutil.RunConcurrent(50, func(int) error {
		t, err := c.Get(context.Background(), "demo-school")
		if err == nil && t.ID != s.demo.ID {
			return errors.New("wrong tenant")
		}
		return err
	})

	s.Equal(int32(50), result.Successes)
	s.Equal(int32(1), s.loader.calls.Load())
}

// TestInvalidationBeatsInFlightFill: a fetch that started before an
// invalidation must not repopulate the cache with pre-invalidation data.
func (s *CacheSuite) TestInvalidationBeatsInFlightFill() {
	s.loader.block = make(chan struct{})
	s.loader.started = make(chan struct{}, 1)
	c := s.newCache(DefaultConfig())

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "demo-school")
		done <- err
	}()

	<-s.loader.started
	c.Invalidate("demo-school")
	close(s.loader.block)
	s.Require().NoError(<-done)

	s.Equal(0, c.Len(), "stale fill must be discarded")

	s.loader.block = nil
	_, err := c.Get(context.Background(), "demo-school")
	s.Require().NoError(err)
	s.Equal(int32(2), s.loader.calls.Load())
}

// staleFirstLoader answers its first call with the tenant as it was before a
// status change, and only once released.
type staleFirstLoader struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	before  models.Tenant
	after   models.Tenant
}

func (l *staleFirstLoader) FindByKey(ctx context.Context, _ string) (*models.Tenant, error) {
	if l.calls.Add(1) == 1 {
		close(l.started)
		select {
		case <-l.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		t := l.before
		return &t, nil
	}
	t := l.after
	return &t, nil
}

func (s *CacheSuite) TestInvalidateIDDuringFirstFill() {
	suspended := *s.demo
	suspended.Status = models.TenantStatusSuspended
	loader := &staleFirstLoader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		before:  *s.demo,
		after:   suspended,
	}
	c := New(loader, Config{TTL: time.Minute, FetchTimeout: 5 * time.Second}, WithClock(s.clock))

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "demo-school")
		done <- err
	}()
	<-loader.started

	// Nothing is cached yet, so the id has no key mapping.
	c.InvalidateID(s.demo.ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err, "a caller after the invalidation must not wait on the earlier fetch")
	s.Equal(models.TenantStatusSuspended, got.Status)
	s.Equal(int32(2), loader.calls.Load())

	close(loader.release)
	s.Require().NoError(<-done)

	got, err = c.Get(context.Background(), "demo-school")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusSuspended, got.Status, "the earlier fetch must not overwrite the fresh entry")
	s.Equal(int32(2), loader.calls.Load())
}

func (s *CacheSuite) TestPurgeDuringFirstFill() {
	suspended := *s.demo
	suspended.Status = models.TenantStatusSuspended
	loader := &staleFirstLoader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		before:  *s.demo,
		after:   suspended,
	}
	c := New(loader, Config{TTL: time.Minute, FetchTimeout: 5 * time.Second}, WithClock(s.clock))

	go func() { _, _ = c.Get(context.Background(), "demo-school") }()
	<-loader.started
	c.Purge()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusSuspended, got.Status)
	close(loader.release)
}

func (s *CacheSuite) TestInvalidate() {
	c := s.newCache(DefaultConfig())
	ctx := context.Background()

	_, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)

	s.Run("by key", func() {
		c.Invalidate("Demo-School")
		s.Equal(0, c.Len())
	})

	s.Run("by tenant id", func() {
		_, err := c.Get(ctx, "demo-school")
		s.Require().NoError(err)
		c.InvalidateID(s.demo.ID)
		s.Equal(0, c.Len())
	})

	s.Run("purge", func() {
		_, err := c.Get(ctx, "demo-school")
		s.Require().NoError(err)
		_, _ = c.Get(ctx, "missing")
		c.Purge()
		s.Equal(0, c.Len())
	})
}

func (s *CacheSuite) TestLRUBound() {
	for _, key := range []string{"a-school", "b-school", "c-school"} {
		s.loader.set(testutil.NewTenant(key).Build())
	}
	c := s.newCache(Config{TTL: time.Minute, MaxEntries: 2, FetchTimeout: time.Second})
	ctx := context.Background()

	_, _ = c.Get(ctx, "a-school")
	_, _ = c.Get(ctx, "b-school")
	_, _ = c.Get(ctx, "a-school") // a is now most recently used
	_, _ = c.Get(ctx, "c-school") // evicts b

	s.Equal(2, c.Len())
	calls := s.loader.calls.Load()

	_, _ = c.Get(ctx, "a-school")
	s.Equal(calls, s.loader.calls.Load(), "a must still be cached")

	_, _ = c.Get(ctx, "b-school")
	s.Equal(calls+1, s.loader.calls.Load(), "b must have been evicted")
}

func (s *CacheSuite) TestResultsAreCopies() {
	c := s.newCache(DefaultConfig())
	ctx := context.Background()

	t, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)
	t.Status = models.TenantStatusInactive

	again, err := c.Get(ctx, "demo-school")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusActive, again.Status)
}
