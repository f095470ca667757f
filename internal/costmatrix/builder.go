package costmatrix

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"

	"cflp/internal/geo"
	"cflp/internal/metrics"
	"cflp/internal/model"
)

// Builder turns demand and facility geometries into a Matrix of planar distances.
// The zero value is ready to use and logs through the global zerolog logger.
type Builder struct {
	Logger *zerolog.Logger
}

type located struct {
	id string
	at orb.Point
}

// Build computes the pairwise distance matrix between demand points and facilities.
//
// A ValidationError is returned for missing or duplicate ids and missing geometry. All
// geometric failures degrade instead, and every distance is measured in one frame: the
// local UTM zone, or the CRS of the first shape when no zone can be selected. Entities
// that cannot be reprojected into that frame and entities with unextractable geometry are
// dropped. When either side ends up empty an empty Matrix is returned.
func (b Builder) Build(demand []model.DemandPoint, facilities []model.Facility) (*Matrix, error) {
	if err := validate(demand, facilities); err != nil {
		return nil, err
	}
	lg := b.logger()
	if len(demand) == 0 || len(facilities) == 0 {
		return Empty(), nil
	}

	ents := make([]entity, 0, len(demand)+len(facilities))
	for _, d := range demand {
		ents = append(ents, entity{kind: "demand point", id: d.ID, shape: d.Location})
	}
	for _, f := range facilities {
		ents = append(ents, entity{kind: "facility", id: f.ID, shape: f.Location, facility: true})
	}
	shapes := make([]geo.Shape, len(ents))
	for i, e := range ents {
		shapes[i] = e.shape
	}

	target, err := geo.UTMFor(shapes)
	if err != nil {
		degrade(lg, metrics.DegradeReprojection, err).Str("crs", target.String()).Msg("utm selection failed, using source coordinates")
	}
	b.project(lg, ents, target)

	var dPts, fPts []located
	for _, e := range ents {
		if e.dropped {
			continue
		}
		p, err := geo.Representative(e.shape)
		if err != nil {
			degrade(lg, metrics.DegradeGeometry, err).Str("entity", e.kind).Str("id", e.id).Str("kind", e.shape.Kind().String()).Msg("skipping geometry")
			continue
		}
		if e.facility {
			fPts = append(fPts, located{id: e.id, at: p})
		} else {
			dPts = append(dPts, located{id: e.id, at: p})
		}
	}
	if len(dPts) == 0 || len(fPts) == 0 {
		lg.Warn().Int("demand", len(dPts)).Int("facilities", len(fPts)).Msg("nothing left to match after filtering geometries")
		return Empty(), nil
	}

	mb := newBuilder()
	for _, d := range dPts {
		row := mb.row(d.id)
		for _, f := range fPts {
			row[f.id] = floats.Distance(d.at[:], f.at[:], 2)
		}
	}
	for _, f := range fPts {
		mb.m.facilityIDs = append(mb.m.facilityIDs, f.id)
	}
	return mb.m, nil
}

type entity struct {
	kind     string
	id       string
	shape    geo.Shape
	facility bool
	dropped  bool
}

// project moves every entity into target. Entities that cannot be reprojected are
// dropped so that no distance mixes two frames.
func (b Builder) project(lg *zerolog.Logger, ents []entity, target geo.CRS) {
	if target == "" {
		return
	}
	for i, e := range ents {
		t, err := geo.Transform(e.shape, target)
		if err != nil {
			ents[i].dropped = true
			degrade(lg, metrics.DegradeReprojection, err).Str("entity", e.kind).Str("id", e.id).Str("crs", e.shape.CRS.String()).Msg("reprojection failed, skipping entity")
			continue
		}
		ents[i].shape = t
	}
}

func (b Builder) logger() *zerolog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return &log.Logger
}

func degrade(lg *zerolog.Logger, kind string, err error) *zerolog.Event {
	metrics.Degradations.WithLabelValues(kind).Inc()
	return lg.Warn().Err(err).Str("degradation", kind)
}

func validate(demand []model.DemandPoint, facilities []model.Facility) error {
	seen := map[string]struct{}{}
	for i, d := range demand {
		if err := checkEntity("demand point", i, d.ID, d.Location, seen); err != nil {
			return err
		}
	}
	seen = map[string]struct{}{}
	for i, f := range facilities {
		if err := checkEntity("facility", i, f.ID, f.Location, seen); err != nil {
			return err
		}
	}
	return nil
}

func checkEntity(entity string, i int, id string, loc geo.Shape, seen map[string]struct{}) error {
	if id == "" {
		return &model.ValidationError{Kind: model.MissingID, Entity: entity, Index: i}
	}
	if _, dup := seen[id]; dup {
		return &model.ValidationError{Kind: model.DuplicateID, Entity: entity, ID: id, Index: i}
	}
	seen[id] = struct{}{}
	if loc.Geom == nil {
		return &model.ValidationError{Kind: model.MissingGeometry, Entity: entity, ID: id, Index: i}
	}
	return nil
}

// IsValidation reports whether err came from input validation rather than geometry.
func IsValidation(err error) bool { return errors.Is(err, model.ErrValidation) }
