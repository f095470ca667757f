// Package dataset turns upstream GeoJSON files into demand points and facilities.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"cflp/internal/geo"
	"cflp/internal/model"
)

// Entity is one feature with its resolved identifier.
type Entity struct {
	ID         string
	Shape      geo.Shape
	Properties geojson.Properties
}

type crsMember struct {
	CRS *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

// ParseFeatures decodes a FeatureCollection. Identifiers come from the "id" property,
// then the feature id, then the feature's position. The collection's legacy "crs"
// member selects the CRS; without one coordinates are WGS84.
func ParseFeatures(data []byte) ([]Entity, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	var cm crsMember
	if err := json.Unmarshal(data, &cm); err != nil {
		return nil, fmt.Errorf("decode crs member: %w", err)
	}
	crs := geo.WGS84
	if cm.CRS != nil {
		crs = geo.CRS(cm.CRS.Properties.Name).Normalize()
	}

	out := make([]Entity, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := idString(f.Properties["id"])
		if id == "" {
			id = idString(f.ID)
		}
		if id == "" {
			id = strconv.Itoa(i)
		}
		out = append(out, Entity{ID: id, Shape: geo.NewShape(f.Geometry, crs), Properties: f.Properties})
	}
	return out, nil
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

func readFeatures(path string) ([]Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	es, err := ParseFeatures(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return es, nil
}

// LoadDemand reads demand points from path. A numeric "demand" property sets the
// quantity; otherwise it stays zero and the configured default applies.
func LoadDemand(path string) ([]model.DemandPoint, error) {
	es, err := readFeatures(path)
	if err != nil {
		return nil, err
	}
	out := make([]model.DemandPoint, 0, len(es))
	for _, e := range es {
		out = append(out, model.DemandPoint{ID: e.ID, Location: e.Shape, Quantity: intProp(e.Properties, "demand")})
	}
	return out, nil
}

// LoadFacilities reads facilities from path. Numeric "capacity" and "fixedCost"
// properties override the configured defaults.
func LoadFacilities(path string) ([]model.Facility, error) {
	es, err := readFeatures(path)
	if err != nil {
		return nil, err
	}
	out := make([]model.Facility, 0, len(es))
	for _, e := range es {
		f := model.Facility{ID: e.ID, Location: e.Shape, Capacity: capacityProp(e.Properties)}
		if v, ok := e.Properties["fixedCost"].(float64); ok && v >= 0 && !math.IsInf(v, 0) {
			f.FixedCost = &v
		}
		out = append(out, f)
	}
	return out, nil
}

// capacityProp reads a whole, non-negative "capacity". Anything else leaves the capacity
// unset.
func capacityProp(p geojson.Properties) *int {
	v, ok := p["capacity"].(float64)
	if !ok || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return nil
	}
	c := int(v)
	return &c
}

func intProp(p geojson.Properties, key string) int {
	v, ok := p[key].(float64)
	if !ok || v <= 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0
	}
	return int(v)
}
