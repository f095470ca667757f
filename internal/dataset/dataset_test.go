package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"cflp/internal/geo"
	"cflp/internal/model"
)

const pharmacies = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"id": 101, "capacity": 3, "fixedCost": 12.5},
     "geometry": {"type": "Point", "coordinates": [13.4, 52.5]}},
    {"type": "Feature", "id": "node/7", "properties": {"name": "Apotheke"},
     "geometry": {"type": "Polygon", "coordinates": [[[13.5,52.5],[13.51,52.5],[13.51,52.51],[13.5,52.51],[13.5,52.5]]]}},
    {"type": "Feature", "properties": {"capacity": 2.5},
     "geometry": {"type": "Point", "coordinates": [13.6, 52.5]}}
  ]
}`

const practitioners = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3857"}},
  "features": [
    {"type": "Feature", "properties": {"id": "gp-1", "demand": 2},
     "geometry": {"type": "Point", "coordinates": [1491681.0, 6891534.0]}},
    {"type": "Feature", "properties": {},
     "geometry": null}
  ]
}`

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFacilities(t *testing.T) {
	fs, err := LoadFacilities(write(t, t.TempDir(), "f.geojson", pharmacies))
	require.NoError(t, err)
	require.Len(t, fs, 3)

	require.Equal(t, "101", fs[0].ID)
	require.NotNil(t, fs[0].Capacity)
	require.Equal(t, 3, *fs[0].Capacity)
	require.NotNil(t, fs[0].FixedCost)
	require.Equal(t, 12.5, *fs[0].FixedCost)
	require.Equal(t, geo.WGS84, fs[0].Location.CRS)

	require.Equal(t, "node/7", fs[1].ID)
	require.Equal(t, geo.KindPolygon, fs[1].Location.Kind())
	require.Nil(t, fs[1].Capacity)
	require.Nil(t, fs[1].FixedCost)

	require.Equal(t, "2", fs[2].ID)
	require.Nil(t, fs[2].Capacity, "fractional capacity is ignored")
}

func TestLoadDemandWithCRSMember(t *testing.T) {
	ds, err := LoadDemand(write(t, t.TempDir(), "d.geojson", practitioners))
	require.NoError(t, err)
	require.Len(t, ds, 2)
	require.Equal(t, "gp-1", ds[0].ID)
	require.Equal(t, 2, ds[0].Quantity)
	require.Equal(t, geo.WebMercator, ds[0].Location.CRS)
	require.Equal(t, "1", ds[1].ID)
	require.Nil(t, ds[1].Location.Geom)
}

func TestParseFeaturesRejectsGarbage(t *testing.T) {
	_, err := ParseFeatures([]byte(`{"type":"Point","coordinates":[1,2]}`))
	require.Error(t, err)
	_, err = ParseFeatures([]byte(`nope`))
	require.Error(t, err)
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "berlin_pharmacies.geojson", pharmacies)
	write(t, dir, "berlin_practitioners.geojson", practitioners)

	demand, facilities, err := LoadScenario(context.Background(), dir, "Berlin, Germany")
	require.NoError(t, err)
	require.Len(t, demand, 2)
	require.Len(t, facilities, 3)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "berlin_pharmacies.geojson", pharmacies)
	_, _, err := LoadScenario(context.Background(), dir, "Berlin")
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorContains(t, err, "practitioners")
}

func TestFiles(t *testing.T) {
	d, f := Files("data", "New York, USA")
	require.Equal(t, filepath.Join("data", "new_york_practitioners.geojson"), d)
	require.Equal(t, filepath.Join("data", "new_york_pharmacies.geojson"), f)
}

func TestDummyData(t *testing.T) {
	fs := DummyFacilities()
	ds := DummyDemand()
	require.Len(t, fs, 10)
	require.Len(t, ds, 10)
	require.Equal(t, "Dummy_Pharmacy_9", fs[9].ID)
	require.Equal(t, "Dummy_Practitioner_0", ds[0].ID)

	p, err := geo.Representative(fs[2].Location)
	require.NoError(t, err)
	require.InDelta(t, 13.42, p[0], 1e-9)
	require.InDelta(t, 52.51, p[1], 1e-9)

	p, err = geo.Representative(ds[3].Location)
	require.NoError(t, err)
	require.InDelta(t, 13.41, p[0], 1e-9)
	require.InDelta(t, 52.525, p[1], 1e-9)
}

func TestAssignmentFeatures(t *testing.T) {
	facilities := []model.Facility{
		{ID: "F1", Location: geo.Point(13.4, 52.5, geo.WGS84)},
		{ID: "F2", Location: geo.Point(13.5, 52.5, geo.WGS84)},
	}
	demand := []model.DemandPoint{
		{ID: "D1", Location: geo.Point(13.41, 52.5, geo.WGS84)},
		{ID: "D2", Location: geo.Shape{}},
		{ID: "D3", Location: geo.Point(13.42, 52.5, geo.WGS84)},
	}
	fc := AssignmentFeatures(demand, facilities, []string{"F1"}, model.Assignment{"D1": "F1", "D2": "F1"})
	require.Len(t, fc.Features, 2)
	require.Equal(t, "facility", fc.Features[0].Properties["kind"])
	require.Equal(t, orb.Point{13.4, 52.5}, fc.Features[0].Geometry)
	require.Equal(t, orb.LineString{{13.41, 52.5}, {13.4, 52.5}}, fc.Features[1].Geometry)
}
