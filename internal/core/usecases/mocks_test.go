package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/ports"
	"github.com/propmap/propmap/internal/core/usecases"
)

// --- Mock MapEngine ---

type flyCall struct {
	Center   domain.GeoPoint
	Zoom     float64
	Duration time.Duration
}

type mockEngine struct {
	mu       sync.Mutex
	ready    bool
	settle   bool
	boundsFn func(ctx context.Context) (domain.BoundingBox, error)
	flights  []flyCall
}

func (m *mockEngine) Ready() bool { return m.ready }

func (m *mockEngine) SupportsSettle() bool { return m.settle }

func (m *mockEngine) VisibleBounds(ctx context.Context) (domain.BoundingBox, error) {
	if m.boundsFn != nil {
		return m.boundsFn(ctx)
	}
	return domain.BoundingBox{}, nil
}

func (m *mockEngine) FlyTo(ctx context.Context, center domain.GeoPoint, zoom float64, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flights = append(m.flights, flyCall{Center: center, Zoom: zoom, Duration: d})
	return nil
}

func (m *mockEngine) Flights() []flyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]flyCall(nil), m.flights...)
}

// --- Mock Navigator ---

type mockNavigator struct {
	mu       sync.Mutex
	url      string
	replaces []string
}

func (m *mockNavigator) CurrentURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

func (m *mockNavigator) Replace(ctx context.Context, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = query
	m.replaces = append(m.replaces, query)
	return nil
}

func (m *mockNavigator) Replaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.replaces...)
}

// --- Manual debounce clock ---

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) usecases.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// Fire runs the i-th scheduled callback the way a timer that lost the race
// with Stop would.
func (c *fakeClock) Fire(i int) {
	c.mu.Lock()
	t := c.timers[i]
	c.mu.Unlock()
	t.fn()
}

func (c *fakeClock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// --- Mock ListingRepository ---

type mockListingRepo struct {
	mu            sync.Mutex
	pointsCalls   int
	versionCalls  int
	pointsFn      func(ctx context.Context, filters domain.FilterSet) ([]domain.ListingPoint, error)
	dataVersionFn func(ctx context.Context) (int64, error)
}

func (m *mockListingRepo) UpsertBatch(ctx context.Context, listings []domain.Listing) error {
	return nil
}

func (m *mockListingRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Listing, error) {
	return nil, nil
}

func (m *mockListingRepo) Points(ctx context.Context, filters domain.FilterSet) ([]domain.ListingPoint, error) {
	m.mu.Lock()
	m.pointsCalls++
	m.mu.Unlock()
	if m.pointsFn != nil {
		return m.pointsFn(ctx, filters)
	}
	return nil, nil
}

func (m *mockListingRepo) DataVersion(ctx context.Context) (int64, error) {
	m.mu.Lock()
	m.versionCalls++
	m.mu.Unlock()
	if m.dataVersionFn != nil {
		return m.dataVersionFn(ctx)
	}
	return 1, nil
}

func (m *mockListingRepo) PointsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pointsCalls
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttlSeconds
	return nil
}

