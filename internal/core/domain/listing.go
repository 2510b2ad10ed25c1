package domain

import (
	"math"
	"time"
)

// Listing is a property offered for sale or rent.
type Listing struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Latitude        *float64         `json:"latitude,omitempty"`
	Longitude       *float64         `json:"longitude,omitempty"`
	Price           int64            `json:"price"`
	Bedrooms        int              `json:"bedrooms"`
	Bathrooms       int              `json:"bathrooms"`
	Category        PropertyCategory `json:"category"`
	TransactionType TransactionType  `json:"transaction_type"`
	City            string           `json:"city,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Point projects the listing onto the fields the clustering index needs.
func (l Listing) Point() ListingPoint {
	return ListingPoint{
		ID:              l.ID,
		Latitude:        l.Latitude,
		Longitude:       l.Longitude,
		Price:           l.Price,
		Category:        l.Category,
		TransactionType: l.TransactionType,
	}
}

// ListingPoint is a clusterable listing: identifier, optional coordinates and
// the small payload rendered on a marker.
type ListingPoint struct {
	ID              string           `json:"id"`
	Latitude        *float64         `json:"latitude,omitempty"`
	Longitude       *float64         `json:"longitude,omitempty"`
	Price           int64            `json:"price"`
	Category        PropertyCategory `json:"category,omitempty"`
	TransactionType TransactionType  `json:"transaction_type,omitempty"`
}

// HasCoordinates reports whether the point can be placed on the map.
func (p ListingPoint) HasCoordinates() bool {
	if p.Latitude == nil || p.Longitude == nil {
		return false
	}
	lat, lng := *p.Latitude, *p.Longitude
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// ClusterFeature is one entry of a cluster query: either a single listing
// (Cluster false, Point set) or an aggregate of PointCount listings.
type ClusterFeature struct {
	Longitude  float64       `json:"longitude"`
	Latitude   float64       `json:"latitude"`
	Cluster    bool          `json:"cluster"`
	ClusterID  int           `json:"cluster_id,omitempty"`
	PointCount int           `json:"point_count"`
	Point      *ListingPoint `json:"point,omitempty"`
}

// ListingsChanged is broadcast after listings are written.
type ListingsChanged struct {
	Version int64     `json:"version"`
	Count   int       `json:"count"`
	At      time.Time `json:"at"`
}
