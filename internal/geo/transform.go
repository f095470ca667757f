package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Transform reprojects s into the target CRS. All conversions pass through WGS84;
// supported systems are WGS84, WebMercator and the WGS84 UTM zones.
func Transform(s Shape, to CRS) (Shape, error) {
	from := s.CRS.Normalize()
	to = to.Normalize()
	if from == to {
		return Shape{Geom: s.Geom, CRS: to}, nil
	}
	if s.Geom == nil {
		return Shape{}, fmt.Errorf("%w: missing geometry", ErrUnextractable)
	}
	inv, err := toWGS84(from)
	if err != nil {
		return Shape{}, err
	}
	fwd, err := fromWGS84(to)
	if err != nil {
		return Shape{}, err
	}

	var bad bool
	g := project.Geometry(orb.Clone(s.Geom), func(p orb.Point) orb.Point {
		q := fwd(inv(p))
		if !finite(q) {
			bad = true
		}
		return q
	})
	if bad {
		return Shape{}, fmt.Errorf("%w: %s -> %s", ErrProjection, from, to)
	}
	return Shape{Geom: g, CRS: to}, nil
}

// TransformAll reprojects every shape, stopping at the first failure.
func TransformAll(shapes []Shape, to CRS) ([]Shape, error) {
	out := make([]Shape, len(shapes))
	for i, s := range shapes {
		t, err := Transform(s, to)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func toWGS84(c CRS) (orb.Projection, error) {
	if c == WGS84 {
		return func(p orb.Point) orb.Point { return p }, nil
	}
	if c == WebMercator {
		return project.Mercator.ToWGS84, nil
	}
	if zone, north, ok := c.UTMZoneOf(); ok {
		return func(p orb.Point) orb.Point {
			lon, lat := utmToLonLat(p[0], p[1], zone, north)
			return orb.Point{lon, lat}
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, c)
}

func fromWGS84(c CRS) (orb.Projection, error) {
	if c == WGS84 {
		return func(p orb.Point) orb.Point { return p }, nil
	}
	if c == WebMercator {
		return project.WGS84.ToMercator, nil
	}
	if zone, north, ok := c.UTMZoneOf(); ok {
		return func(p orb.Point) orb.Point {
			x, y := lonLatToUTM(p[0], p[1], zone, north)
			return orb.Point{x, y}
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, c)
}
