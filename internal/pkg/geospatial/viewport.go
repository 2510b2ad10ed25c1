package geospatial

import (
	"math"

	"github.com/propmap/propmap/internal/core/domain"
)

// BoundsPadding overscans the approximated box by 20% so markers on the edge
// are not dropped.
const BoundsPadding = 1.2

// minDelta keeps the approximated box non-degenerate at absurd zoom levels.
const minDelta = 1e-9

// ApproximateBounds derives a bounding box from a viewport without asking the
// map engine. It is used before the engine is ready and whenever its bounds
// call fails.
func ApproximateBounds(v domain.Viewport) domain.BoundingBox {
	zoom := v.Zoom
	if math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		zoom = domain.DefaultViewport().Zoom
	}
	lat := v.Latitude
	lng := v.Longitude
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		def := domain.DefaultViewport()
		lat, lng = def.Latitude, def.Longitude
	}
	lat = domain.ClampLatitude(lat)
	lng = domain.WrapLongitude(lng)

	scale := math.Pow(2, zoom)
	latDelta := math.Max(180/scale*BoundsPadding, minDelta)
	lngDelta := math.Max(360/scale*BoundsPadding, minDelta)

	box := domain.BoundingBox{
		South: math.Max(-90, lat-latDelta),
		North: math.Min(90, lat+latDelta),
	}
	if box.North <= box.South {
		// Only reachable at the poles with a vanishing delta.
		if lat >= 0 {
			box.South = box.North - minDelta
		} else {
			box.North = box.South + minDelta
		}
	}

	if 2*lngDelta >= 360 {
		box.West, box.East = -180, 180
	} else {
		box.West = domain.WrapLongitude(lng - lngDelta)
		box.East = domain.WrapLongitude(lng + lngDelta)
	}
	return box
}

// ViewportFromBounds inverts ApproximateBounds: the center is the box's
// midpoint and the zoom is the largest one whose approximated box still
// covers the given one.
func ViewportFromBounds(b domain.BoundingBox) domain.Viewport {
	c := b.Center()
	latSpan := b.North - b.South
	lngSpan := b.East - b.West
	if b.CrossesAntimeridian() {
		lngSpan += 360
	}

	zoom := domain.MaxZoom
	if latSpan > 0 {
		zoom = math.Min(zoom, math.Log2(2*180*BoundsPadding/latSpan))
	}
	if lngSpan > 0 && lngSpan < 360 {
		zoom = math.Min(zoom, math.Log2(2*360*BoundsPadding/lngSpan))
	}

	return domain.Viewport{
		Longitude: c.Lon,
		Latitude:  c.Lat,
		Zoom:      zoom,
	}.Clamp()
}
