package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrUnextractable is returned when no representative coordinate can be derived from a shape.
var ErrUnextractable = errors.New("no representative coordinate")

// Kind enumerates the geometry variants the engine understands.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPoint
	KindPolygon
	KindMultiPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindPolygon:
		return "polygon"
	case KindMultiPolygon:
		return "multipolygon"
	}
	return "unsupported"
}

// Shape is an immutable geometry tagged with the CRS its coordinates are expressed in.
type Shape struct {
	Geom orb.Geometry
	CRS  CRS
}

// NewShape normalizes crs and wraps g.
func NewShape(g orb.Geometry, crs CRS) Shape {
	return Shape{Geom: g, CRS: crs.Normalize()}
}

// Point is a convenience constructor for a single coordinate.
func Point(x, y float64, crs CRS) Shape {
	return NewShape(orb.Point{x, y}, crs)
}

// Kind reports which geometry variant s holds.
func (s Shape) Kind() Kind {
	switch s.Geom.(type) {
	case orb.Point:
		return KindPoint
	case orb.Polygon:
		return KindPolygon
	case orb.MultiPolygon:
		return KindMultiPolygon
	}
	return KindUnsupported
}

// Representative derives the single coordinate used for distance calculations:
// points are used directly, polygonal shapes use their area centroid when valid and non-empty.
func Representative(s Shape) (orb.Point, error) {
	switch g := s.Geom.(type) {
	case nil:
		return orb.Point{}, fmt.Errorf("%w: missing geometry", ErrUnextractable)
	case orb.Point:
		if !finite(g) {
			return orb.Point{}, fmt.Errorf("%w: non-finite point", ErrUnextractable)
		}
		return g, nil
	case orb.Polygon:
		if !validPolygon(g) {
			return orb.Point{}, fmt.Errorf("%w: invalid or empty polygon", ErrUnextractable)
		}
		c, _ := planar.CentroidArea(g)
		return c, nil
	case orb.MultiPolygon:
		if len(g) == 0 {
			return orb.Point{}, fmt.Errorf("%w: empty multipolygon", ErrUnextractable)
		}
		for _, p := range g {
			if !validPolygon(p) {
				return orb.Point{}, fmt.Errorf("%w: invalid multipolygon member", ErrUnextractable)
			}
		}
		c, _ := planar.CentroidArea(g)
		return c, nil
	default:
		return orb.Point{}, fmt.Errorf("%w: unexpected %s geometry", ErrUnextractable, g.GeoJSONType())
	}
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}

// validPolygon requires closed rings of at least four vertices, finite coordinates,
// a non-zero area and a simple outer ring.
func validPolygon(p orb.Polygon) bool {
	if len(p) == 0 {
		return false
	}
	for _, r := range p {
		if len(r) < 4 || r[0] != r[len(r)-1] {
			return false
		}
		for _, pt := range r {
			if !finite(pt) {
				return false
			}
		}
	}
	if planar.Area(p[0]) == 0 {
		return false
	}
	return simpleRing(p[0])
}

// simpleRing reports whether no two non-adjacent edges of a closed ring intersect.
func simpleRing(r orb.Ring) bool {
	n := len(r) - 1
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(r[i], r[i+1], r[j], r[j+1]) {
				return false
			}
		}
	}
	return true
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) || (d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) || (d4 == 0 && onSegment(p1, p2, q2))
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}
