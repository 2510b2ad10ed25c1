package geospatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/propmap/propmap/internal/core/domain"
)

// Point converts a domain point to orb's lon/lat order.
func Point(p domain.GeoPoint) orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Distance is the great-circle distance in meters.
func Distance(a, b domain.GeoPoint) float64 {
	return geo.DistanceHaversine(Point(a), Point(b))
}

// Bound converts a non-wrapping box to an orb.Bound.
func Bound(b domain.BoundingBox) orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}
