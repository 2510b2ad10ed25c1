package ports

import (
	"context"
	"errors"
	"time"

	"github.com/propmap/propmap/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishListingsChanged(ctx context.Context, ev domain.ListingsChanged) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeListingsChanged(ctx context.Context, handler func(ctx context.Context, ev domain.ListingsChanged) error) error
}

// ErrCacheMiss is returned by CacheService.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
}

// MapEngine is the client-side map renderer.
type MapEngine interface {
	// Ready reports whether the engine can answer VisibleBounds.
	Ready() bool
	// VisibleBounds returns the engine's own view of what is on screen,
	// accounting for chrome that shifts the optical center.
	VisibleBounds(ctx context.Context) (domain.BoundingBox, error)
	// SupportsSettle reports whether the engine emits a native
	// movement-settled signal. Without it the caller debounces moves.
	SupportsSettle() bool
	FlyTo(ctx context.Context, center domain.GeoPoint, zoom float64, duration time.Duration) error
}

// Navigator is the browser address bar. URLs are query strings without '?'.
type Navigator interface {
	CurrentURL() string
	// Replace swaps the current history entry; it never pushes.
	Replace(ctx context.Context, query string) error
}
