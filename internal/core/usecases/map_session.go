package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/ports"
	"github.com/propmap/propmap/internal/pkg/geospatial"
)

// Fly-to animation bounds. Duration grows with the distance travelled.
const (
	minFlyDuration = 300 * time.Millisecond
	maxFlyDuration = 1500 * time.Millisecond
	// flyMetersPerMS adds one millisecond of animation per 100m.
	flyMetersPerMS = 100.0
)

// ClusterListener receives the clusters for every new query input.
type ClusterListener func(ctx context.Context, snap SyncSnapshot, features []domain.ClusterFeature)

// MapSession is one page view of the map: its filters, its viewport/URL
// sync and the cluster queries they drive. Nothing is shared between
// sessions except the ClusterService's index cache.
type MapSession struct {
	ID       string
	store    *FilterStore
	sync     *SyncController
	clusters *ClusterService
	listener ClusterListener
	log      *slog.Logger
}

// NewMapSession wires a session. opts.OnChange is replaced; use listener.
func NewMapSession(id string, engine ports.MapEngine, nav ports.Navigator, clusters *ClusterService, listener ClusterListener, opts SyncOptions) *MapSession {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &MapSession{
		ID:       id,
		store:    NewFilterStore(),
		clusters: clusters,
		listener: listener,
		log:      opts.Logger.With("session", id),
	}
	opts.Logger = s.log
	opts.OnChange = s.onChange
	s.sync = NewSyncController(engine, nav, s.store, opts)
	return s
}

// Filters exposes the session's store for draft edits.
func (s *MapSession) Filters() *FilterStore { return s.store }

// Sync exposes the session's controller.
func (s *MapSession) Sync() *SyncController { return s.sync }

func (s *MapSession) Mount(ctx context.Context) SyncSnapshot { return s.sync.Mount(ctx) }

func (s *MapSession) Move(vp domain.Viewport) { s.sync.OnMove(vp) }

func (s *MapSession) Settled(ctx context.Context) SyncSnapshot { return s.sync.OnSettled(ctx) }

func (s *MapSession) SetDraft(key domain.FilterKey, v domain.FilterValue) { s.store.SetDraft(key, v) }

func (s *MapSession) Commit(ctx context.Context) SyncSnapshot { return s.sync.Commit(ctx) }

func (s *MapSession) Discard() { s.sync.DiscardDraft() }

func (s *MapSession) Clear(ctx context.Context) SyncSnapshot { return s.sync.ClearAll(ctx) }

func (s *MapSession) Navigate(ctx context.Context, raw string) bool { return s.sync.OnNavigate(ctx, raw) }

// Clusters queries the current bounds at the floor of the current zoom with
// the committed filters.
func (s *MapSession) Clusters(ctx context.Context) ([]domain.ClusterFeature, error) {
	snap := s.sync.Snapshot()
	return s.clusters.Query(ctx, snap.Filters, snap.Bounds, snap.Viewport.ZoomFloor())
}

// ExpandCluster flies the camera to the cluster's center at the zoom where
// it splits, and returns that zoom. An unknown cluster still yields a zoom.
func (s *MapSession) ExpandCluster(ctx context.Context, clusterID int) int {
	snap := s.sync.Snapshot()
	zoom := s.clusters.ExpansionZoom(ctx, snap.Filters, clusterID)

	center, ok := s.clusters.ClusterCenter(ctx, snap.Filters, clusterID)
	if !ok {
		s.log.DebugContext(ctx, "expand: unknown cluster", "cluster_id", clusterID)
		return zoom
	}

	target := snap.Viewport
	target.Latitude, target.Longitude = center.Lat, center.Lon
	target.Zoom = float64(zoom)
	s.sync.FlyTo(ctx, target, FlyDuration(snap.Viewport.Center(), center))
	return zoom
}

// Leaves pages through the listings inside a cluster.
func (s *MapSession) Leaves(ctx context.Context, clusterID, limit, offset int) []domain.ListingPoint {
	return s.clusters.Leaves(ctx, s.sync.Snapshot().Filters, clusterID, limit, offset)
}

// Close stops pending timers.
func (s *MapSession) Close() {
	s.sync.Close()
}

// FlyDuration scales the camera animation with the great-circle distance.
func FlyDuration(from, to domain.GeoPoint) time.Duration {
	meters := geospatial.Distance(from, to)
	d := minFlyDuration + time.Duration(meters/flyMetersPerMS)*time.Millisecond
	return min(d, maxFlyDuration)
}

func (s *MapSession) onChange(ctx context.Context, snap SyncSnapshot) {
	if s.listener == nil {
		return
	}
	features, err := s.clusters.Query(ctx, snap.Filters, snap.Bounds, snap.Viewport.ZoomFloor())
	if err != nil {
		s.log.ErrorContext(ctx, "cluster query failed", "error", err)
		return
	}
	s.listener(ctx, snap, features)
}
