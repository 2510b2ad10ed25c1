package http

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb/geojson"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/usecases"
	"github.com/propmap/propmap/internal/pkg/logging"
)

type stubRepo struct {
	points []domain.ListingPoint
}

func (r *stubRepo) UpsertBatch(context.Context, []domain.Listing) error { return nil }
func (r *stubRepo) GetByIDs(context.Context, []string) ([]domain.Listing, error) {
	return nil, nil
}
func (r *stubRepo) Points(context.Context, domain.FilterSet) ([]domain.ListingPoint, error) {
	return r.points, nil
}
func (r *stubRepo) DataVersion(context.Context) (int64, error) { return 1, nil }

type outbox struct {
	mu   sync.Mutex
	msgs []serverMessage
}

func (o *outbox) send(v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, v.(serverMessage))
	return nil
}

func (o *outbox) take() []serverMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.msgs
	o.msgs = nil
	return out
}

func ofType(msgs []serverMessage, typ string) []serverMessage {
	var out []serverMessage
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func featureCollectionOf(t *testing.T, m serverMessage) []*geojson.Feature {
	t.Helper()
	fc, ok := m.Data.(*geojson.FeatureCollection)
	if !ok {
		t.Fatalf("clusters payload is %T", m.Data)
	}
	return fc.Features
}

func bilbaoPoints() []domain.ListingPoint {
	coords := [][2]float64{
		{43.2630, -2.9350}, {43.2640, -2.9340}, {43.2620, -2.9360},
		{43.2700, -2.9200}, {43.2560, -2.9500},
	}
	out := make([]domain.ListingPoint, len(coords))
	for i, c := range coords {
		lat, lng := c[0], c[1]
		out[i] = domain.ListingPoint{ID: string(rune('a' + i)), Latitude: &lat, Longitude: &lng, Price: 200000}
	}
	return out
}

func newTestSocket(t *testing.T) (*mapSocket, *outbox) {
	t.Helper()
	repo := &stubRepo{points: bilbaoPoints()}
	deps := &Dependencies{
		Clusters: usecases.NewClusterService(repo, nil, usecases.ClusterServiceOptions{Logger: logging.Discard()}),
		Logger:   logging.Discard(),
	}
	box := &outbox{}
	s := newMapSocket(deps, box.send)
	t.Cleanup(s.close)
	return s, box
}

// bilbaoLink is already canonical: sorted keys, four decimals.
const bilbaoLink = "ne_lat=43.3100&ne_lng=-2.8900&sw_lat=43.2400&sw_lng=-2.9600&view=map"

func TestMapSocket_RequiresMount(t *testing.T) {
	s, _ := newTestSocket(t)

	if err := s.handle(context.Background(), clientMessage{Type: "commit"}); err != errNotMounted {
		t.Fatalf("expected errNotMounted, got %v", err)
	}
}

func TestMapSocket_MountDeepLink(t *testing.T) {
	s, box := newTestSocket(t)
	ctx := context.Background()

	if err := s.handle(ctx, clientMessage{Type: "mount", URL: "?" + bilbaoLink, Settle: true}); err != nil {
		t.Fatalf("mount: %v", err)
	}
	msgs := box.take()

	if got := ofType(msgs, "replace_url"); len(got) != 0 {
		t.Errorf("mount must not rewrite the address bar, got %+v", got)
	}
	if got := ofType(msgs, "fly_to"); len(got) != 1 {
		t.Errorf("expected one fly_to to the linked bounds, got %d", len(got))
	}
	clusters := ofType(msgs, "clusters")
	if len(clusters) != 1 {
		t.Fatalf("expected one clusters message, got %d", len(clusters))
	}
	mounted := ofType(msgs, "mounted")
	if len(mounted) != 1 {
		t.Fatalf("expected mounted, got %+v", msgs)
	}
	if mounted[0].URL != bilbaoLink {
		t.Errorf("expected hydrated url %q, got %q", bilbaoLink, mounted[0].URL)
	}

	if err := s.handle(ctx, clientMessage{Type: "mount"}); err != errAlreadyMounted {
		t.Errorf("expected errAlreadyMounted, got %v", err)
	}
}

func TestMapSocket_SettledWritesClientBounds(t *testing.T) {
	s, box := newTestSocket(t)
	ctx := context.Background()

	_ = s.handle(ctx, clientMessage{Type: "mount", URL: bilbaoLink, Settle: true})
	box.take()

	vp := domain.Viewport{Latitude: 43.27, Longitude: -2.93, Zoom: 14}
	bounds := domain.BoundingBox{North: 43.29, South: 43.25, East: -2.90, West: -2.96}
	if err := s.handle(ctx, clientMessage{Type: "move", Viewport: &vp, Bounds: &bounds}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := ofType(box.take(), "replace_url"); len(got) != 0 {
		t.Fatalf("settle-capable client: move alone must not write, got %+v", got)
	}

	if err := s.handle(ctx, clientMessage{Type: "settled"}); err != nil {
		t.Fatalf("settled: %v", err)
	}
	msgs := box.take()
	replaced := ofType(msgs, "replace_url")
	if len(replaced) != 1 {
		t.Fatalf("expected one replace_url, got %+v", msgs)
	}
	want := "ne_lat=43.2900&ne_lng=-2.9000&sw_lat=43.2500&sw_lng=-2.9600&view=map"
	if replaced[0].URL != want {
		t.Errorf("expected %q, got %q", want, replaced[0].URL)
	}
	if s.CurrentURL() != want {
		t.Errorf("address bar not updated: %q", s.CurrentURL())
	}
	if len(ofType(msgs, "clusters")) != 1 {
		t.Error("expected clusters after settle")
	}

	// The browser reports the URL it was told to show: an echo.
	if err := s.handle(ctx, clientMessage{Type: "navigate", URL: want}); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if msgs := box.take(); len(msgs) != 0 {
		t.Errorf("echo must be ignored, got %+v", msgs)
	}
}

func TestMapSocket_DraftCommit(t *testing.T) {
	s, box := newTestSocket(t)
	ctx := context.Background()

	_ = s.handle(ctx, clientMessage{Type: "mount", URL: bilbaoLink, Settle: true})
	box.take()

	if err := s.handle(ctx, clientMessage{Type: "draft", Key: "minPrice", Value: domain.Number(150000)}); err != nil {
		t.Fatalf("draft: %v", err)
	}
	if msgs := box.take(); len(msgs) != 0 {
		t.Fatalf("draft must not touch the url or clusters, got %+v", msgs)
	}

	if err := s.handle(ctx, clientMessage{Type: "commit"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	replaced := ofType(box.take(), "replace_url")
	if len(replaced) != 1 || !strings.HasPrefix(replaced[0].URL, "minPrice=150000&") {
		t.Fatalf("expected committed minPrice in url, got %+v", replaced)
	}

	if err := s.handle(ctx, clientMessage{Type: "draft", Key: "colour"}); err == nil {
		t.Error("expected unknown key error")
	}
}

func TestMapSocket_ExpandAndLeaves(t *testing.T) {
	s, box := newTestSocket(t)
	ctx := context.Background()

	vp := domain.Viewport{Latitude: 43.26, Longitude: -2.93, Zoom: 10}
	_ = s.handle(ctx, clientMessage{Type: "mount", Viewport: &vp, Settle: true})

	var clusterID int
	for _, m := range ofType(box.take(), "clusters") {
		fc := featureCollectionOf(t, m)
		for _, f := range fc {
			if f.Properties["cluster"] == true {
				clusterID = f.Properties["cluster_id"].(int)
			}
		}
	}
	if clusterID == 0 {
		t.Fatal("expected a cluster at zoom 10")
	}

	if err := s.handle(ctx, clientMessage{Type: "expand", ClusterID: clusterID}); err != nil {
		t.Fatalf("expand: %v", err)
	}
	msgs := box.take()
	if len(ofType(msgs, "fly_to")) != 1 {
		t.Errorf("expected fly_to, got %+v", msgs)
	}
	exp := ofType(msgs, "expansion")
	if len(exp) != 1 || *exp[0].Zoom <= 10 {
		t.Errorf("expected expansion zoom above 10, got %+v", exp)
	}

	if err := s.handle(ctx, clientMessage{Type: "leaves", ClusterID: clusterID, Limit: 2}); err != nil {
		t.Fatalf("leaves: %v", err)
	}
	leaves := ofType(box.take(), "leaves")
	if len(leaves) != 1 || len(leaves[0].Data.([]domain.ListingPoint)) != 2 {
		t.Errorf("expected a page of 2 leaves, got %+v", leaves)
	}
}

func TestMapSocket_UnknownType(t *testing.T) {
	s, _ := newTestSocket(t)
	ctx := context.Background()
	_ = s.handle(ctx, clientMessage{Type: "mount", Settle: true})

	if err := s.handle(ctx, clientMessage{Type: "zoom"}); err == nil {
		t.Error("expected error for unknown type")
	}
	if err := s.handle(ctx, clientMessage{Type: "move"}); err == nil {
		t.Error("expected error for move without viewport")
	}
}
