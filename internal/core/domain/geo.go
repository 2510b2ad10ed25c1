package domain

import "math"

// Zoom range accepted by the map engine.
const (
	MinZoom = 0.0
	MaxZoom = 22.0
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox represents a geographic rectangle. West > East means the box
// crosses the anti-meridian.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Valid reports whether the box has finite, in-range coordinates and South < North.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if b.South < -90 || b.North > 90 || b.South >= b.North {
		return false
	}
	if b.West < -180 || b.West > 180 || b.East < -180 || b.East > 180 {
		return false
	}
	return b.West != b.East
}

// CrossesAntimeridian reports whether the box wraps past ±180°.
func (b BoundingBox) CrossesAntimeridian() bool {
	return b.West > b.East
}

// Split returns the box as one or two non-wrapping boxes.
func (b BoundingBox) Split() []BoundingBox {
	if !b.CrossesAntimeridian() {
		return []BoundingBox{b}
	}
	return []BoundingBox{
		{North: b.North, South: b.South, West: b.West, East: 180},
		{North: b.North, South: b.South, West: -180, East: b.East},
	}
}

// Center returns the midpoint of the box, honouring anti-meridian crossing.
func (b BoundingBox) Center() GeoPoint {
	lat := (b.North + b.South) / 2
	if !b.CrossesAntimeridian() {
		return GeoPoint{Lat: lat, Lon: (b.East + b.West) / 2}
	}
	span := b.East + 360 - b.West
	return GeoPoint{Lat: lat, Lon: WrapLongitude(b.West + span/2)}
}

// Viewport is the camera state of the map.
type Viewport struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Zoom      float64 `json:"zoom"`
	Pitch     float64 `json:"pitch"`
	Bearing   float64 `json:"bearing"`
}

// DefaultViewport is used when neither the URL nor the client provide a camera.
func DefaultViewport() Viewport {
	return Viewport{Longitude: -3.7038, Latitude: 40.4168, Zoom: 11}
}

// Clamp returns a copy with zoom in [MinZoom, MaxZoom], latitude in [-90, 90]
// and longitude wrapped into [-180, 180]. Non-finite fields take the default.
func (v Viewport) Clamp() Viewport {
	def := DefaultViewport()
	if !finite(v.Longitude) {
		v.Longitude = def.Longitude
	}
	if !finite(v.Latitude) {
		v.Latitude = def.Latitude
	}
	if !finite(v.Zoom) {
		v.Zoom = def.Zoom
	}
	if !finite(v.Pitch) {
		v.Pitch = 0
	}
	if !finite(v.Bearing) {
		v.Bearing = 0
	}
	v.Zoom = math.Max(MinZoom, math.Min(MaxZoom, v.Zoom))
	v.Latitude = ClampLatitude(v.Latitude)
	v.Longitude = WrapLongitude(v.Longitude)
	return v
}

// ZoomFloor is the integer zoom used for cluster queries.
func (v Viewport) ZoomFloor() int {
	return int(math.Floor(v.Zoom))
}

// Center returns the camera target.
func (v Viewport) Center() GeoPoint {
	return GeoPoint{Lat: v.Latitude, Lon: v.Longitude}
}

// ClampLatitude limits lat to [-90, 90].
func ClampLatitude(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

// WrapLongitude maps lng into [-180, 180].
func WrapLongitude(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	w := math.Mod(lng+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
