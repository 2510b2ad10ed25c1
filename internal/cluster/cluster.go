// Package cluster builds a zoom-dependent cluster hierarchy over listing
// points and answers viewport queries against it.
//
// Load pays O(n log n) once per point set; Query is O(log n + k) and is the
// only call made when the map pans or zooms.
package cluster

import (
	"errors"
	"math"

	"github.com/MadAppGang/kdbush"

	"github.com/propmap/propmap/internal/core/domain"
)

// Tuning surface.
const (
	// DefaultRadius is the merge radius in pixels at the tile extent.
	DefaultRadius = 60.0
	// DefaultMaxZoom is the last zoom that clusters; above it every point
	// renders individually.
	DefaultMaxZoom = 16
	// DefaultMinPoints is the smallest group that becomes a cluster.
	DefaultMinPoints = 2

	DefaultMinZoom  = 0
	DefaultExtent   = 512
	DefaultNodeSize = 64
)

// Cluster ids pack the origin zoom into the low bits, so zooms must fit in them.
const (
	zoomBits     = 5
	maxZoomLimit = 1<<zoomBits - 2
	infinityZoom = math.MaxInt32
)

var errNoCluster = errors.New("cluster: no cluster with the specified id")

// Options configures an index.
type Options struct {
	MinZoom   int
	MaxZoom   int
	MinPoints int
	Radius    float64
	Extent    int
	NodeSize  int
}

// DefaultOptions returns the named defaults.
func DefaultOptions() Options {
	return Options{
		MinZoom:   DefaultMinZoom,
		MaxZoom:   DefaultMaxZoom,
		MinPoints: DefaultMinPoints,
		Radius:    DefaultRadius,
		Extent:    DefaultExtent,
		NodeSize:  DefaultNodeSize,
	}
}

// Normalized fills zero fields with defaults and clamps zooms to what the
// id encoding supports.
func (o Options) Normalized() Options {
	d := DefaultOptions()
	if o.MaxZoom <= 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.MaxZoom > maxZoomLimit {
		o.MaxZoom = maxZoomLimit
	}
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.MinPoints < 2 {
		o.MinPoints = d.MinPoints
	}
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.Extent <= 0 {
		o.Extent = d.Extent
	}
	if o.NodeSize <= 0 {
		o.NodeSize = d.NodeSize
	}
	return o
}

// node is a point or cluster at one zoom level, in Mercator [0,1] space.
type node struct {
	x, y      float64
	zoom      int // last zoom this node was processed at
	id        int // leaf: index into Index.points; cluster: packed cluster id
	parentID  int
	numPoints int
	cluster   bool
}

func (n *node) Coordinates() (float64, float64) {
	return n.x, n.y
}

// Index is an immutable cluster hierarchy over one point set.
type Index struct {
	opts    Options
	points  []domain.ListingPoint
	trees   []*kdbush.KDBush // trees[z-MinZoom], z in [MinZoom, MaxZoom+1]
	skipped int
}

// Load indexes points. Points without usable coordinates are skipped.
func Load(points []domain.ListingPoint, opts Options) *Index {
	opts = opts.Normalized()
	idx := &Index{
		opts:  opts,
		trees: make([]*kdbush.KDBush, opts.MaxZoom-opts.MinZoom+2),
	}

	idx.points = make([]domain.ListingPoint, 0, len(points))
	for _, p := range points {
		if !p.HasCoordinates() {
			idx.skipped++
			continue
		}
		idx.points = append(idx.points, p)
	}
	if len(idx.points) == 0 {
		return idx
	}

	nodes := make([]*node, len(idx.points))
	for i, p := range idx.points {
		nodes[i] = &node{
			x:         lngX(*p.Longitude),
			y:         latY(*p.Latitude),
			zoom:      infinityZoom,
			id:        i,
			parentID:  -1,
			numPoints: 1,
		}
	}

	idx.trees[idx.level(opts.MaxZoom+1)] = newBush(nodes, opts.NodeSize)
	for z := opts.MaxZoom; z >= opts.MinZoom; z-- {
		nodes = idx.clusterize(nodes, z, idx.trees[idx.level(z+1)])
		idx.trees[idx.level(z)] = newBush(nodes, opts.NodeSize)
	}
	return idx
}

// Len is the number of indexed points.
func (idx *Index) Len() int { return len(idx.points) }

// Skipped is the number of input points dropped for missing coordinates.
func (idx *Index) Skipped() int { return idx.skipped }

// Options returns the effective options.
func (idx *Index) Options() Options { return idx.opts }

// Query returns the points and clusters inside box at the given integer zoom.
func (idx *Index) Query(box domain.BoundingBox, zoom int) []domain.ClusterFeature {
	if !box.Valid() {
		return []domain.ClusterFeature{}
	}
	tree := idx.trees[idx.level(idx.limitZoom(zoom))]
	if tree == nil {
		return []domain.ClusterFeature{}
	}

	var out []domain.ClusterFeature
	for _, b := range box.Split() {
		west, east := b.West, b.East
		if east-west >= 360 {
			west, east = -180, 180
		}
		ids := tree.Range(lngX(west), latY(b.North), lngX(east), latY(b.South))
		for _, id := range ids {
			out = append(out, idx.feature(tree.Points[id].(*node)))
		}
	}
	if out == nil {
		out = []domain.ClusterFeature{}
	}
	return out
}

// Children returns the features one level below clusterID.
func (idx *Index) Children(clusterID int) ([]domain.ClusterFeature, error) {
	originID, originZoom := idx.decode(clusterID)
	if originZoom < idx.opts.MinZoom+1 || originZoom > idx.opts.MaxZoom+1 {
		return nil, errNoCluster
	}
	tree := idx.trees[idx.level(originZoom)]
	if tree == nil || originID < 0 || originID >= len(tree.Points) {
		return nil, errNoCluster
	}
	origin := tree.Points[originID].(*node)

	r := idx.opts.Radius / (float64(idx.opts.Extent) * math.Pow(2, float64(originZoom-1)))
	ids := tree.Within(&kdbush.SimplePoint{X: origin.x, Y: origin.y}, r)

	var children []domain.ClusterFeature
	for _, id := range ids {
		n := tree.Points[id].(*node)
		if n.parentID == clusterID {
			children = append(children, idx.feature(n))
		}
	}
	if len(children) == 0 {
		return nil, errNoCluster
	}
	return children, nil
}

// ExpansionZoom is the zoom at which clusterID breaks apart. Unknown ids get
// MaxZoom+1, where every point is shown individually.
func (idx *Index) ExpansionZoom(clusterID int) int {
	fallback := idx.opts.MaxZoom + 1
	if !idx.isCluster(clusterID) {
		return fallback
	}
	_, zoom := idx.decode(clusterID)
	zoom--
	for zoom <= idx.opts.MaxZoom {
		children, err := idx.Children(clusterID)
		if err != nil {
			return fallback
		}
		zoom++
		if len(children) != 1 || !children[0].Cluster {
			break
		}
		clusterID = children[0].ClusterID
	}
	return zoom
}

// Leaves pages through the original points of clusterID. Any lookup failure
// yields an empty slice.
func (idx *Index) Leaves(clusterID, limit, offset int) []domain.ListingPoint {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	out := []domain.ListingPoint{}
	if _, err := idx.appendLeaves(&out, clusterID, limit, offset, 0); err != nil {
		return []domain.ListingPoint{}
	}
	return out
}

// PointCount is the number of leaves below clusterID, or 0 if unknown.
func (idx *Index) PointCount(clusterID int) int {
	children, err := idx.Children(clusterID)
	if err != nil {
		return 0
	}
	total := 0
	for _, c := range children {
		total += c.PointCount
	}
	return total
}

// ClusterCenter is the weighted centroid of clusterID.
func (idx *Index) ClusterCenter(clusterID int) (domain.GeoPoint, bool) {
	if !idx.isCluster(clusterID) {
		return domain.GeoPoint{}, false
	}
	children, err := idx.Children(clusterID)
	if err != nil {
		return domain.GeoPoint{}, false
	}
	var wx, wy float64
	var n int
	for _, c := range children {
		wx += lngX(c.Longitude) * float64(c.PointCount)
		wy += latY(c.Latitude) * float64(c.PointCount)
		n += c.PointCount
	}
	return domain.GeoPoint{Lon: xLng(wx / float64(n)), Lat: yLat(wy / float64(n))}, true
}

func (idx *Index) appendLeaves(out *[]domain.ListingPoint, clusterID, limit, offset, skipped int) (int, error) {
	children, err := idx.Children(clusterID)
	if err != nil {
		return skipped, err
	}
	for _, child := range children {
		switch {
		case child.Cluster:
			if skipped+child.PointCount <= offset {
				skipped += child.PointCount
			} else {
				skipped, err = idx.appendLeaves(out, child.ClusterID, limit, offset, skipped)
				if err != nil {
					return skipped, err
				}
			}
		case skipped < offset:
			skipped++
		default:
			*out = append(*out, *child.Point)
		}
		if len(*out) == limit {
			break
		}
	}
	return skipped, nil
}

func (idx *Index) clusterize(nodes []*node, zoom int, tree *kdbush.KDBush) []*node {
	r := idx.opts.Radius / (float64(idx.opts.Extent) * math.Pow(2, float64(zoom)))
	next := make([]*node, 0, len(nodes))

	for i, p := range nodes {
		if p.zoom <= zoom {
			continue
		}
		p.zoom = zoom

		neighbors := tree.Within(&kdbush.SimplePoint{X: p.x, Y: p.y}, r)

		numPoints := p.numPoints
		for _, nid := range neighbors {
			if b := nodes[nid]; b.zoom > zoom {
				numPoints += b.numPoints
			}
		}

		if numPoints > p.numPoints && numPoints >= idx.opts.MinPoints {
			wx := p.x * float64(p.numPoints)
			wy := p.y * float64(p.numPoints)
			id := idx.encode(i, zoom)

			for _, nid := range neighbors {
				b := nodes[nid]
				if b.zoom <= zoom {
					continue
				}
				b.zoom = zoom
				wx += b.x * float64(b.numPoints)
				wy += b.y * float64(b.numPoints)
				b.parentID = id
			}
			p.parentID = id

			next = append(next, &node{
				x:         wx / float64(numPoints),
				y:         wy / float64(numPoints),
				zoom:      infinityZoom,
				id:        id,
				parentID:  -1,
				numPoints: numPoints,
				cluster:   true,
			})
			continue
		}

		next = append(next, p)
		if numPoints > p.numPoints {
			// Too few to form a cluster: keep the neighbours as they are.
			for _, nid := range neighbors {
				b := nodes[nid]
				if b.zoom <= zoom {
					continue
				}
				b.zoom = zoom
				next = append(next, b)
			}
		}
	}
	return next
}

func (idx *Index) feature(n *node) domain.ClusterFeature {
	if n.cluster {
		return domain.ClusterFeature{
			Longitude:  xLng(n.x),
			Latitude:   yLat(n.y),
			Cluster:    true,
			ClusterID:  n.id,
			PointCount: n.numPoints,
		}
	}
	p := idx.points[n.id]
	return domain.ClusterFeature{
		Longitude:  *p.Longitude,
		Latitude:   *p.Latitude,
		PointCount: 1,
		Point:      &p,
	}
}

// encode packs the seed's position in the zoom+1 level and that level's zoom.
// Offsetting by len(points) keeps cluster ids disjoint from leaf ids.
func (idx *Index) encode(i, zoom int) int {
	return (i << zoomBits) + (zoom + 1) + len(idx.points)
}

func (idx *Index) decode(clusterID int) (originID, originZoom int) {
	v := clusterID - len(idx.points)
	return v >> zoomBits, v % (1 << zoomBits)
}

func (idx *Index) isCluster(clusterID int) bool {
	return clusterID >= len(idx.points) && len(idx.points) > 0
}

func (idx *Index) limitZoom(z int) int {
	return max(idx.opts.MinZoom, min(z, idx.opts.MaxZoom+1))
}

func (idx *Index) level(z int) int {
	return z - idx.opts.MinZoom
}

func newBush(nodes []*node, nodeSize int) *kdbush.KDBush {
	pts := make([]kdbush.Point, len(nodes))
	for i, n := range nodes {
		pts[i] = n
	}
	return kdbush.NewBush(pts, nodeSize)
}

// lngX / latY project to spherical Mercator in [0,1].
func lngX(lng float64) float64 {
	return lng/360 + 0.5
}

func latY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	return math.Max(0, math.Min(1, y))
}

func xLng(x float64) float64 {
	return (x - 0.5) * 360
}

func yLat(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}
