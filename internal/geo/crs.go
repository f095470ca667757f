// Package geo holds the coordinate reference handling used to turn raw entity geometries
// into planar coordinates suitable for metric distance calculations.
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CRS identifies a coordinate reference system as "EPSG:<code>".
type CRS string

const (
	// WGS84 is geographic longitude/latitude.
	WGS84 CRS = "EPSG:4326"
	// WebMercator is the spherical Mercator used by web map tiles.
	WebMercator CRS = "EPSG:3857"
)

var (
	ErrUnsupportedCRS = errors.New("unsupported crs")
	ErrProjection     = errors.New("projection produced non-finite coordinates")
)

// EPSG returns the numeric EPSG code of c. Accepts "EPSG:n", "epsg:n",
// "urn:ogc:def:crs:EPSG::n" and a bare code.
func (c CRS) EPSG() (int, error) {
	s := strings.TrimSpace(string(c))
	if i := strings.LastIndex(s, ":"); i >= 0 {
		if !strings.Contains(strings.ToUpper(s[:i]), "EPSG") {
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedCRS, string(c))
		}
		s = s[i+1:]
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCRS, string(c))
	}
	return code, nil
}

// Normalize maps equivalent spellings onto the canonical "EPSG:<code>" form.
// An empty CRS is taken to be WGS84, the GeoJSON default.
func (c CRS) Normalize() CRS {
	if strings.TrimSpace(string(c)) == "" {
		return WGS84
	}
	if strings.EqualFold(string(c), "urn:ogc:def:crs:OGC:1.3:CRS84") || strings.EqualFold(string(c), "CRS84") {
		return WGS84
	}
	code, err := c.EPSG()
	if err != nil {
		return c
	}
	return FromEPSG(code)
}

// FromEPSG builds a CRS from a numeric EPSG code.
func FromEPSG(code int) CRS { return CRS("EPSG:" + strconv.Itoa(code)) }

// UTMZoneOf decodes a WGS84 UTM identifier (326zz north, 327zz south).
func (c CRS) UTMZoneOf() (zone int, north bool, ok bool) {
	code, err := c.EPSG()
	if err != nil {
		return 0, false, false
	}
	switch {
	case code >= 32601 && code <= 32660:
		return code - 32600, true, true
	case code >= 32701 && code <= 32760:
		return code - 32700, false, true
	}
	return 0, false, false
}

func (c CRS) String() string { return string(c) }
