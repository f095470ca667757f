package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"cflp/internal/geo"
	"cflp/internal/model"
)

// Files returns the practitioner and pharmacy file paths for city under dir,
// e.g. data/berlin_practitioners.geojson.
func Files(dir, city string) (demand, facilities string) {
	prefix := model.ScenarioKey(city)
	return filepath.Join(dir, prefix+"_practitioners.geojson"), filepath.Join(dir, prefix+"_pharmacies.geojson")
}

// LoadScenario reads both files of city concurrently.
func LoadScenario(ctx context.Context, dir, city string) ([]model.DemandPoint, []model.Facility, error) {
	dpath, fpath := Files(dir, city)
	var (
		demand     []model.DemandPoint
		facilities []model.Facility
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		demand, err = LoadDemand(dpath)
		if err != nil {
			return fmt.Errorf("load practitioners: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		facilities, err = LoadFacilities(fpath)
		if err != nil {
			return fmt.Errorf("load pharmacies: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return demand, facilities, nil
}

// DummyFacilities returns ten pharmacies in central Berlin.
func DummyFacilities() []model.Facility {
	out := make([]model.Facility, 10)
	for i := range out {
		out[i] = model.Facility{
			ID:       "Dummy_Pharmacy_" + strconv.Itoa(i),
			Location: geo.Point(13.4+0.01*float64(i), 52.5+0.005*float64(i), geo.WGS84),
		}
	}
	return out
}

// DummyDemand returns ten practitioners in central Berlin.
func DummyDemand() []model.DemandPoint {
	out := make([]model.DemandPoint, 10)
	for i := range out {
		out[i] = model.DemandPoint{
			ID:       "Dummy_Practitioner_" + strconv.Itoa(i),
			Location: geo.Point(13.35+0.02*float64(i), 52.51+0.005*float64(i), geo.WGS84),
		}
	}
	return out
}

// AssignmentFeatures renders a solution as GeoJSON: one point per open facility and
// one line per assignment, all in WGS84. Entities whose geometry cannot be placed are
// left out.
func AssignmentFeatures(demand []model.DemandPoint, facilities []model.Facility, open []string, a model.Assignment) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fpos := map[string]orb.Point{}
	for _, f := range facilities {
		if p, ok := lonLat(f.Location); ok {
			fpos[f.ID] = p
		}
	}
	for _, id := range open {
		p, ok := fpos[id]
		if !ok {
			continue
		}
		feat := geojson.NewFeature(p)
		feat.Properties["id"] = id
		feat.Properties["kind"] = "facility"
		fc.Append(feat)
	}
	for _, d := range demand {
		fid, ok := a[d.ID]
		if !ok {
			continue
		}
		fp, ok := fpos[fid]
		if !ok {
			continue
		}
		dp, ok := lonLat(d.Location)
		if !ok {
			continue
		}
		feat := geojson.NewFeature(orb.LineString{dp, fp})
		feat.Properties["demand"] = d.ID
		feat.Properties["facility"] = fid
		feat.Properties["kind"] = "assignment"
		fc.Append(feat)
	}
	return fc
}

func lonLat(s geo.Shape) (orb.Point, bool) {
	if s.Geom == nil {
		return orb.Point{}, false
	}
	w, err := geo.Transform(s, geo.WGS84)
	if err != nil {
		return orb.Point{}, false
	}
	p, err := geo.Representative(w)
	if err != nil {
		return orb.Point{}, false
	}
	return p, true
}
