package http

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/pkg/geospatial"
)

// featureCollection renders cluster query results as GeoJSON points.
// Clusters carry cluster, cluster_id, point_count and
// point_count_abbreviated; single listings carry their marker payload.
func featureCollection(features []domain.ClusterFeature, box domain.BoundingBox) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	// West > East is kept as-is for boxes across the anti-meridian.
	fc.BBox = geojson.NewBBox(geospatial.Bound(box))
	for _, f := range features {
		fc.Append(feature(f))
	}
	return fc
}

func feature(f domain.ClusterFeature) *geojson.Feature {
	gf := geojson.NewFeature(orb.Point{f.Longitude, f.Latitude})
	if f.Cluster {
		gf.ID = f.ClusterID
		gf.Properties["cluster"] = true
		gf.Properties["cluster_id"] = f.ClusterID
		gf.Properties["point_count"] = f.PointCount
		gf.Properties["point_count_abbreviated"] = abbreviate(f.PointCount)
		return gf
	}

	gf.Properties["cluster"] = false
	gf.Properties["point_count"] = 1
	if p := f.Point; p != nil {
		gf.ID = p.ID
		gf.Properties["id"] = p.ID
		gf.Properties["price"] = p.Price
		if p.Category != "" {
			gf.Properties["category"] = string(p.Category)
		}
		if p.TransactionType != "" {
			gf.Properties["transaction_type"] = string(p.TransactionType)
		}
	}
	return gf
}

// abbreviate formats marker counts: 950, 1.2k, 15k.
func abbreviate(n int) string {
	switch {
	case n >= 10000:
		return fmt.Sprintf("%dk", int(math.Round(float64(n)/1000)))
	case n >= 1000:
		return fmt.Sprintf("%gk", math.Round(float64(n)/100)/10)
	default:
		return fmt.Sprintf("%d", n)
	}
}
