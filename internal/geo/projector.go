package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrNoShapes = errors.New("no shapes to project")

// UTMFor selects a locally accurate planar CRS for a set of shapes: the UTM zone
// containing the WGS84 centroid of their union.
//
// When the shapes cannot be brought into WGS84 the CRS of the first shape is returned
// together with the error; callers may keep working in unprojected coordinates.
func UTMFor(shapes []Shape) (CRS, error) {
	if len(shapes) == 0 {
		return "", ErrNoShapes
	}
	src := shapes[0].CRS.Normalize()
	geoms := make([]orb.Geometry, 0, len(shapes))
	for _, s := range shapes {
		if s.Geom == nil {
			continue
		}
		t, err := Transform(s, WGS84)
		if err != nil {
			return src, fmt.Errorf("reproject to %s: %w", WGS84, err)
		}
		geoms = append(geoms, t.Geom)
	}
	c, ok := unionCentroid(geoms)
	if !ok {
		return src, fmt.Errorf("%w: union of %d shapes", ErrUnextractable, len(shapes))
	}
	return UTMFromLonLat(c[0], c[1]), nil
}

// unionCentroid approximates the centroid of the union of geoms. Polygonal parts dominate
// when present (area weighted); otherwise the distinct points are averaged.
func unionCentroid(geoms []orb.Geometry) (orb.Point, bool) {
	var areas orb.MultiPolygon
	seen := map[orb.Point]struct{}{}
	var pts []orb.Point
	addPoint := func(p orb.Point) {
		if !finite(p) {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		pts = append(pts, p)
	}
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Point:
			addPoint(v)
		case orb.MultiPoint:
			for _, p := range v {
				addPoint(p)
			}
		case orb.Polygon:
			if validPolygon(v) {
				areas = append(areas, v)
			}
		case orb.MultiPolygon:
			for _, p := range v {
				if validPolygon(p) {
					areas = append(areas, p)
				}
			}
		}
	}
	if len(areas) > 0 {
		if c, a := planar.CentroidArea(areas); a > 0 && finite(c) {
			return c, true
		}
	}
	if len(pts) == 0 {
		return orb.Point{}, false
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(pts))
	return orb.Point{sx / n, sy / n}, true
}
