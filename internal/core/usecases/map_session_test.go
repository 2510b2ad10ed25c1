package usecases_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/usecases"
	"github.com/propmap/propmap/internal/pkg/logging"
)

const bilbaoLink = "ne_lat=43.3100&ne_lng=-2.8900&sw_lat=43.2400&sw_lng=-2.9600"

type recordedClusters struct {
	mu    sync.Mutex
	calls [][]domain.ClusterFeature
}

func (r *recordedClusters) listen(ctx context.Context, snap usecases.SyncSnapshot, features []domain.ClusterFeature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, features)
}

func (r *recordedClusters) Last() []domain.ClusterFeature {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func newSession(t *testing.T, url string) (*usecases.MapSession, *mockEngine, *mockNavigator, *recordedClusters) {
	t.Helper()
	repo := &mockListingRepo{pointsFn: func(ctx context.Context, f domain.FilterSet) ([]domain.ListingPoint, error) {
		return listingPoints(200), nil
	}}
	engine := &mockEngine{settle: true}
	nav := &mockNavigator{url: url}
	rec := &recordedClusters{}
	svc := newClusterService(repo, nil, 4)
	sess := usecases.NewMapSession("s-1", engine, nav, svc, rec.listen, usecases.SyncOptions{Logger: logging.Discard()})
	t.Cleanup(sess.Close)
	return sess, engine, nav, rec
}

func TestMapSession_MountPublishesClusters(t *testing.T) {
	sess, _, _, rec := newSession(t, bilbaoLink)
	sess.Mount(context.Background())

	features := rec.Last()
	if len(features) == 0 {
		t.Fatal("expected clusters after mount")
	}
	total := 0
	for _, f := range features {
		total += f.PointCount
	}
	if total != 200 {
		t.Errorf("expected all 200 listings inside the linked bounds, got %d", total)
	}

	direct, err := sess.Clusters(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(direct) != len(features) {
		t.Errorf("expected Clusters to match the published set, got %d vs %d", len(direct), len(features))
	}
}

func TestMapSession_ExpandCluster(t *testing.T) {
	sess, engine, _, rec := newSession(t, bilbaoLink)
	ctx := context.Background()
	snap := sess.Mount(ctx)

	var target domain.ClusterFeature
	for _, f := range rec.Last() {
		if f.Cluster {
			target = f
			break
		}
	}
	if !target.Cluster {
		t.Fatal("expected a cluster at the initial zoom")
	}

	zoom := sess.ExpandCluster(ctx, target.ClusterID)
	if zoom <= snap.Viewport.ZoomFloor() {
		t.Errorf("expected expansion zoom above %d, got %d", snap.Viewport.ZoomFloor(), zoom)
	}

	flights := engine.Flights()
	if len(flights) != 2 {
		t.Fatalf("expected mount jump plus expansion flight, got %d", len(flights))
	}
	fly := flights[1]
	if fly.Zoom != float64(zoom) {
		t.Errorf("expected flight to zoom %d, got %v", zoom, fly.Zoom)
	}
	if fly.Duration < 300*time.Millisecond || fly.Duration > 1500*time.Millisecond {
		t.Errorf("expected duration within 300ms-1.5s, got %v", fly.Duration)
	}
	if d := fly.Center.Lat - target.Latitude; d > 1e-6 || d < -1e-6 {
		t.Errorf("expected flight to the cluster center %v, got %v", target.Latitude, fly.Center.Lat)
	}
}

func TestMapSession_ExpandUnknownCluster(t *testing.T) {
	sess, engine, _, _ := newSession(t, bilbaoLink)
	ctx := context.Background()
	sess.Mount(ctx)

	zoom := sess.ExpandCluster(ctx, -7)
	if zoom != 17 {
		t.Errorf("expected fallback zoom 17, got %d", zoom)
	}
	if len(engine.Flights()) != 1 {
		t.Error("expected no flight for an unknown cluster")
	}
}

func TestMapSession_CommitRequeries(t *testing.T) {
	sess, _, nav, rec := newSession(t, bilbaoLink)
	ctx := context.Background()
	sess.Mount(ctx)
	before := len(rec.calls)

	sess.SetDraft(domain.FilterMinPrice, domain.Number(100050))
	sess.Commit(ctx)

	if len(rec.calls) != before+1 {
		t.Errorf("expected clusters republished after commit")
	}
	if got := nav.CurrentURL(); got == bilbaoLink {
		t.Error("expected URL to carry the committed filter")
	}

	sess.SetDraft(domain.FilterBedrooms, domain.Number(9))
	sess.Discard()
	if sess.Filters().HasDraft() {
		t.Error("expected discard to drop the draft")
	}
}

func TestMapSession_Leaves(t *testing.T) {
	sess, _, _, rec := newSession(t, bilbaoLink)
	ctx := context.Background()
	sess.Mount(ctx)

	for _, f := range rec.Last() {
		if !f.Cluster {
			continue
		}
		leaves := sess.Leaves(ctx, f.ClusterID, 3, 0)
		want := min(3, f.PointCount)
		if len(leaves) != want {
			t.Errorf("expected %d leaves, got %d", want, len(leaves))
		}
		return
	}
	t.Fatal("expected a cluster")
}

func TestFlyDuration(t *testing.T) {
	madrid := domain.GeoPoint{Lat: 40.4168, Lon: -3.7038}
	if d := usecases.FlyDuration(madrid, madrid); d != 300*time.Millisecond {
		t.Errorf("expected minimum duration, got %v", d)
	}
	barcelona := domain.GeoPoint{Lat: 41.3874, Lon: 2.1686}
	if d := usecases.FlyDuration(madrid, barcelona); d != 1500*time.Millisecond {
		t.Errorf("expected capped duration, got %v", d)
	}
	near := domain.GeoPoint{Lat: 40.4168 + 0.45, Lon: -3.7038}
	if d := usecases.FlyDuration(madrid, near); d < 750*time.Millisecond || d > 850*time.Millisecond {
		t.Errorf("expected ~800ms for ~50km, got %v", d)
	}
}
