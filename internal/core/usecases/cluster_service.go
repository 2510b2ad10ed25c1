package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/propmap/propmap/internal/cluster"
	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/ports"
	"github.com/propmap/propmap/internal/pkg/metrics"
	"github.com/propmap/propmap/internal/pkg/telemetry"
	"github.com/propmap/propmap/internal/urlcodec"
)

const (
	defaultMaxIndexes = 32
	defaultPointsTTL  = 300
)

// ClusterServiceOptions configures a ClusterService.
type ClusterServiceOptions struct {
	Cluster cluster.Options
	// MaxIndexes bounds the number of point sets kept indexed.
	MaxIndexes int
	// PointsTTL is the cache lifetime of a filtered point set, in seconds.
	PointsTTL int
	Logger    *slog.Logger
}

// ClusterService owns the cluster indexes. An index is built once per point
// set identity (committed filters plus data version) and reused for every
// viewport query against that set.
type ClusterService struct {
	repo  ports.ListingRepository
	cache ports.CacheService
	opts  ClusterServiceOptions
	log   *slog.Logger
	group singleflight.Group

	indexes *lru.Cache[string, *cluster.Index]

	mu           sync.Mutex
	version      int64
	versionKnown bool
}

// NewClusterService creates a ClusterService. cache may be nil.
func NewClusterService(repo ports.ListingRepository, cache ports.CacheService, opts ClusterServiceOptions) *ClusterService {
	if opts.MaxIndexes <= 0 {
		opts.MaxIndexes = defaultMaxIndexes
	}
	if opts.PointsTTL <= 0 {
		opts.PointsTTL = defaultPointsTTL
	}
	opts.Cluster = opts.Cluster.Normalized()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	// New only fails on a non-positive size.
	indexes, _ := lru.New[string, *cluster.Index](opts.MaxIndexes)
	return &ClusterService{
		repo:    repo,
		cache:   cache,
		opts:    opts,
		log:     opts.Logger,
		indexes: indexes,
	}
}

// LeafZoom is the zoom from which every point renders individually. It is
// also the answer when an expansion lookup fails.
func (s *ClusterService) LeafZoom() int {
	return s.fallbackZoom()
}

// Index returns the index for filters, building it on first use.
func (s *ClusterService) Index(ctx context.Context, filters domain.FilterSet) (*cluster.Index, error) {
	version, err := s.currentVersion(ctx)
	if err != nil {
		return nil, err
	}
	canonical := urlcodec.EncodeFilters(filters)
	key := canonical + "@" + strconv.FormatInt(version, 10)

	if idx, ok := s.indexes.Get(key); ok {
		return idx, nil
	}

	// The build is shared by every caller on key and outlives the one that
	// started it. Each caller waits on its own context.
	buildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		if idx, ok := s.indexes.Get(key); ok {
			return idx, nil
		}
		idx, err := s.build(buildCtx, filters, canonical, version)
		if err != nil {
			return nil, err
		}
		s.indexes.Add(key, idx)
		return idx, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cluster.Index), nil
	}
}

// Query returns the clusters and points visible in box at zoom.
func (s *ClusterService) Query(ctx context.Context, filters domain.FilterSet, box domain.BoundingBox, zoom int) ([]domain.ClusterFeature, error) {
	idx, err := s.Index(ctx, filters)
	if err != nil {
		return nil, err
	}

	_, span := telemetry.Tracer().Start(ctx, "cluster.query")
	defer span.End()
	span.SetAttributes(attribute.Int("zoom", zoom))

	start := time.Now()
	features := idx.Query(box, zoom)
	metrics.QueryDuration.WithLabelValues("query").Observe(time.Since(start).Seconds())

	span.SetAttributes(attribute.Int("features", len(features)))
	return features, nil
}

// ExpansionZoom never fails: lookup problems answer MaxZoom.
func (s *ClusterService) ExpansionZoom(ctx context.Context, filters domain.FilterSet, clusterID int) int {
	idx, err := s.Index(ctx, filters)
	if err != nil {
		s.log.WarnContext(ctx, "expansion zoom: index unavailable", "error", err, "cluster_id", clusterID)
		return s.fallbackZoom()
	}
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("expansion_zoom").Observe(time.Since(start).Seconds())
	}()
	return idx.ExpansionZoom(clusterID)
}

// Leaves never fails: lookup problems answer an empty page.
func (s *ClusterService) Leaves(ctx context.Context, filters domain.FilterSet, clusterID, limit, offset int) []domain.ListingPoint {
	idx, err := s.Index(ctx, filters)
	if err != nil {
		s.log.WarnContext(ctx, "leaves: index unavailable", "error", err, "cluster_id", clusterID)
		return []domain.ListingPoint{}
	}
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("leaves").Observe(time.Since(start).Seconds())
	}()
	return idx.Leaves(clusterID, limit, offset)
}

// ClusterCenter is the weighted centroid of clusterID.
func (s *ClusterService) ClusterCenter(ctx context.Context, filters domain.FilterSet, clusterID int) (domain.GeoPoint, bool) {
	idx, err := s.Index(ctx, filters)
	if err != nil {
		return domain.GeoPoint{}, false
	}
	return idx.ClusterCenter(clusterID)
}

// PointCount is the number of listings below clusterID, 0 when unknown.
func (s *ClusterService) PointCount(ctx context.Context, filters domain.FilterSet, clusterID int) int {
	idx, err := s.Index(ctx, filters)
	if err != nil {
		return 0
	}
	return idx.PointCount(clusterID)
}

// SetVersion records a new data version and drops every index built for an
// older one.
func (s *ClusterService) SetVersion(version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versionKnown && s.version == version {
		return
	}
	s.version = version
	s.versionKnown = true
	s.resetLocked()
}

// Invalidate forgets the data version; the next query asks the repository.
func (s *ClusterService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versionKnown = false
	s.resetLocked()
}

// HandleListingsChanged is the listings.changed subscriber.
func (s *ClusterService) HandleListingsChanged(ctx context.Context, ev domain.ListingsChanged) error {
	metrics.ListingsChanged.Inc()
	s.log.InfoContext(ctx, "listings changed", "version", ev.Version, "count", ev.Count)
	if ev.Version == 0 {
		s.Invalidate()
		return nil
	}
	s.SetVersion(ev.Version)
	return nil
}

// Cached reports how many indexes are held.
func (s *ClusterService) Cached() int {
	return s.indexes.Len()
}

func (s *ClusterService) currentVersion(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.versionKnown {
		v := s.version
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := s.repo.DataVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("data version: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.versionKnown {
		s.version = v
		s.versionKnown = true
	}
	return s.version, nil
}

func (s *ClusterService) build(ctx context.Context, filters domain.FilterSet, canonical string, version int64) (*cluster.Index, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "cluster.load")
	defer span.End()
	span.SetAttributes(
		attribute.String("filters", canonical),
		attribute.Int64("version", version),
	)

	points, err := s.points(ctx, filters, canonical, version)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load points")
		return nil, err
	}

	start := time.Now()
	idx := cluster.Load(points, s.opts.Cluster)
	elapsed := time.Since(start)

	metrics.IndexBuilds.Inc()
	metrics.IndexBuildDuration.Observe(elapsed.Seconds())
	metrics.IndexedPoints.Observe(float64(idx.Len()))
	metrics.SkippedPoints.Add(float64(idx.Skipped()))
	span.SetAttributes(attribute.Int("points", idx.Len()), attribute.Int("skipped", idx.Skipped()))

	s.log.InfoContext(ctx, "cluster index built",
		"filters", canonical,
		"version", version,
		"points", idx.Len(),
		"skipped", idx.Skipped(),
		"duration", elapsed,
	)
	return idx, nil
}

// points is a read-through cache over the repository.
func (s *ClusterService) points(ctx context.Context, filters domain.FilterSet, canonical string, version int64) ([]domain.ListingPoint, error) {
	cacheKey := fmt.Sprintf("listings:points:%s:%d", canonical, version)
	if s.cache != nil {
		data, err := s.cache.Get(ctx, cacheKey)
		if err == nil {
			var pts []domain.ListingPoint
			if err := json.Unmarshal(data, &pts); err == nil {
				metrics.CacheHits.WithLabelValues("points").Inc()
				return pts, nil
			}
		} else if !errors.Is(err, ports.ErrCacheMiss) {
			s.log.WarnContext(ctx, "points cache read failed", "error", err)
		}
		metrics.CacheMisses.WithLabelValues("points").Inc()
	}

	pts, err := s.repo.Points(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(pts); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, s.opts.PointsTTL); err != nil {
				s.log.WarnContext(ctx, "points cache write failed", "error", err)
			}
		}
	}
	return pts, nil
}

func (s *ClusterService) resetLocked() {
	s.indexes.Purge()
}

func (s *ClusterService) fallbackZoom() int {
	return s.opts.Cluster.MaxZoom + 1
}
