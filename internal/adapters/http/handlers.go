package http

import (
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/pkg/geospatial"
	"github.com/propmap/propmap/internal/urlcodec"
)

const maxBatchIDs = 100

// rawQuery is the request query string without '?'.
func rawQuery(c *fiber.Ctx) string {
	return string(c.Request().URI().QueryString())
}

// parseZoom reads the zoom parameter. Without one the zoom that fits box is used.
func parseZoom(c *fiber.Ctx, box domain.BoundingBox) (int, bool) {
	raw := c.Query("zoom")
	if raw == "" {
		return geospatial.ViewportFromBounds(box).ZoomFloor(), true
	}
	z, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(z) || z < domain.MinZoom || z > domain.MaxZoom {
		return 0, false
	}
	return int(math.Floor(z)), true
}

// ClustersHandler returns the clusters and listings inside the requested
// bounds as a GeoJSON FeatureCollection. Filters use the same query keys as
// the map page URL.
func ClustersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st := urlcodec.Decode(rawQuery(c))
		if st.Bounds == nil {
			return errBadRequest(c, "ne_lat, ne_lng, sw_lat and sw_lng are required and must describe a valid box")
		}
		zoom, ok := parseZoom(c, *st.Bounds)
		if !ok {
			return errBadRequest(c, "zoom must be a number between 0 and 22")
		}

		features, err := deps.Clusters.Query(c.UserContext(), st.Filters, *st.Bounds, zoom)
		if err != nil {
			return errStore(c, "cluster query", err)
		}

		c.Set("X-Cluster-Zoom", strconv.Itoa(zoom))
		return c.JSON(featureCollection(features, *st.Bounds))
	}
}

// ExpansionZoomHandler returns the zoom at which a cluster splits. Unknown
// clusters answer the leaf zoom rather than an error.
func ExpansionZoomHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id < 0 {
			return errBadRequest(c, "cluster id must be a non-negative integer")
		}
		filters := urlcodec.Decode(rawQuery(c)).Filters

		return c.JSON(fiber.Map{
			"cluster_id": id,
			"zoom":       deps.Clusters.ExpansionZoom(c.UserContext(), filters, id),
		})
	}
}

// ClusterLeavesHandler pages through the listings inside a cluster. With
// expand=listings each page is hydrated into full listings.
func ClusterLeavesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id < 0 {
			return errBadRequest(c, "cluster id must be a non-negative integer")
		}
		offset, limit := pageParams(c)
		filters := urlcodec.Decode(rawQuery(c)).Filters
		ctx := c.UserContext()

		leaves := deps.Clusters.Leaves(ctx, filters, id, limit, offset)
		pg := Pagination{
			Offset: offset,
			Limit:  limit,
			Total:  deps.Clusters.PointCount(ctx, filters, id),
		}
		SetLinkHeaders(c, pg)

		if c.Query("expand") != "listings" || deps.Listings == nil || len(leaves) == 0 {
			return c.JSON(PaginatedResponse{Data: leaves, Pagination: pg})
		}

		ids := make([]string, len(leaves))
		for i, l := range leaves {
			ids[i] = l.ID
		}
		listings, err := deps.Listings.GetByIDs(ctx, ids)
		if err != nil {
			LoggerFromCtx(ctx).Warn("leaves: hydrate listings failed", "error", err, "cluster_id", id)
			return c.JSON(PaginatedResponse{Data: leaves, Pagination: pg})
		}
		return c.JSON(PaginatedResponse{Data: orderByIDs(listings, ids), Pagination: pg})
	}
}

// BatchListingsHandler returns listings by comma separated ids.
func BatchListingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("ids")
		if raw == "" {
			return errBadRequest(c, "ids query parameter is required")
		}
		var ids []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return errBadRequest(c, "ids query parameter is required")
		}
		if len(ids) > maxBatchIDs {
			return errBadRequest(c, "too many ids (max 100)")
		}
		if deps.Listings == nil {
			return errUnavailable(c, "listings store not configured")
		}

		listings, err := deps.Listings.GetByIDs(c.UserContext(), ids)
		if err != nil {
			return errStore(c, "listing lookup", err)
		}
		return c.JSON(orderByIDs(listings, ids))
	}
}

// CanonicalQueryHandler returns the canonical form of any map page query
// string together with the state it decodes to. Malformed values are
// dropped, never rejected.
func CanonicalQueryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := rawQuery(c)
		st := urlcodec.Decode(raw)
		return c.JSON(fiber.Map{
			"query":   urlcodec.Canonical(raw),
			"filters": st.Filters,
			"bounds":  st.Bounds,
		})
	}
}

// orderByIDs returns listings in the order of ids, dropping unknown ids.
func orderByIDs(listings []domain.Listing, ids []string) []domain.Listing {
	byID := make(map[string]domain.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}
	out := make([]domain.Listing, 0, len(ids))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
