package domain_test

import (
	"math"
	"testing"

	"github.com/propmap/propmap/internal/core/domain"
)

func TestBoundingBox_Valid(t *testing.T) {
	cases := []struct {
		name string
		box  domain.BoundingBox
		want bool
	}{
		{"normal", domain.BoundingBox{North: 41, South: 40, East: -3, West: -4}, true},
		{"antimeridian", domain.BoundingBox{North: 1, South: -1, East: -179, West: 179}, true},
		{"inverted lat", domain.BoundingBox{North: 40, South: 41, East: -3, West: -4}, false},
		{"out of range", domain.BoundingBox{North: 91, South: 40, East: -3, West: -4}, false},
		{"zero width", domain.BoundingBox{North: 41, South: 40, East: 2, West: 2}, false},
		{"nan", domain.BoundingBox{North: math.NaN(), South: 40, East: -3, West: -4}, false},
	}
	for _, tc := range cases {
		if got := tc.box.Valid(); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestBoundingBox_Split(t *testing.T) {
	box := domain.BoundingBox{North: 1, South: -1, East: -170, West: 170}
	parts := box.Split()
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].West != 170 || parts[0].East != 180 || parts[1].West != -180 || parts[1].East != -170 {
		t.Errorf("unexpected split %+v", parts)
	}

	c := box.Center()
	if c.Lon != 180 {
		t.Errorf("expected center lon 180, got %v", c.Lon)
	}
}

func TestViewport_Clamp(t *testing.T) {
	v := domain.Viewport{Longitude: 190, Latitude: -95, Zoom: 30, Pitch: math.NaN()}.Clamp()
	if v.Longitude != -170 {
		t.Errorf("expected wrapped longitude -170, got %v", v.Longitude)
	}
	if v.Latitude != -90 {
		t.Errorf("expected latitude -90, got %v", v.Latitude)
	}
	if v.Zoom != domain.MaxZoom {
		t.Errorf("expected zoom %v, got %v", domain.MaxZoom, v.Zoom)
	}
	if v.Pitch != 0 {
		t.Errorf("expected pitch reset, got %v", v.Pitch)
	}

	if z := (domain.Viewport{Zoom: 12.9}).ZoomFloor(); z != 12 {
		t.Errorf("expected floor 12, got %d", z)
	}
}

func TestWrapLongitude(t *testing.T) {
	cases := map[float64]float64{0: 0, 180: 180, -180: -180, 181: -179, -181: 179, 540: -180, 725: 5}
	for in, want := range cases {
		if got := domain.WrapLongitude(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("WrapLongitude(%v): expected %v, got %v", in, want, got)
		}
	}
}
