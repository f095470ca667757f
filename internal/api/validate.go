package api

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"cflp/internal/config"
	"cflp/internal/engine"
	"cflp/internal/geo"
	"cflp/internal/model"
)

// EntityIn is one demand point or facility. The location is either Lon/Lat (WGS84) or
// a GeoJSON geometry in CRS.
type EntityIn struct {
	ID        string          `json:"id"`
	Lon       *float64        `json:"lon,omitempty"`
	Lat       *float64        `json:"lat,omitempty"`
	Geometry  json.RawMessage `json:"geometry,omitempty"`
	CRS       string          `json:"crs,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	Capacity  *int            `json:"capacity,omitempty"`
	FixedCost *float64        `json:"fixedCost,omitempty"`
}

// SolveRequest is the body of POST /v1/solve. Unset options fall back to the scenario's
// configured values.
type SolveRequest struct {
	Scenario         string     `json:"scenario"`
	City             string     `json:"city,omitempty"`
	FixedCost        *float64   `json:"fixedCost,omitempty"`
	TimeLimitSec     *float64   `json:"timeLimitSec,omitempty"`
	GapLimit         *float64   `json:"gapLimit,omitempty"`
	FacilityCapacity *int       `json:"facilityCapacity,omitempty"`
	DemandQuantity   *int       `json:"demandQuantity,omitempty"`
	Demand           []EntityIn `json:"demand"`
	Facilities       []EntityIn `json:"facilities"`
}

func validateSolveRequest(req *SolveRequest) error {
	if strings.TrimSpace(req.Scenario) == "" && strings.TrimSpace(req.City) == "" {
		return fmt.Errorf("scenario or city is required")
	}
	if req.Scenario != "" && !model.ValidScenarioKey(req.Scenario) {
		return fmt.Errorf("scenario %q must be lower case letters, digits, '-' or '_'", req.Scenario)
	}
	if v := req.FixedCost; v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return fmt.Errorf("fixedCost must be >= 0")
	}
	if v := req.TimeLimitSec; v != nil && (*v <= 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return fmt.Errorf("timeLimitSec must be > 0")
	}
	if v := req.GapLimit; v != nil && (*v < 0 || *v >= 1 || math.IsNaN(*v)) {
		return fmt.Errorf("gapLimit must be in [0,1)")
	}
	if v := req.FacilityCapacity; v != nil && *v <= 0 {
		return fmt.Errorf("facilityCapacity must be > 0")
	}
	if v := req.DemandQuantity; v != nil && *v <= 0 {
		return fmt.Errorf("demandQuantity must be > 0")
	}
	for i, e := range req.Facilities {
		if e.Capacity != nil && *e.Capacity < 0 {
			return fmt.Errorf("facilities[%d]: capacity must be >= 0", i)
		}
		if e.FixedCost != nil && (*e.FixedCost < 0 || math.IsNaN(*e.FixedCost) || math.IsInf(*e.FixedCost, 0)) {
			return fmt.Errorf("facilities[%d]: fixedCost must be >= 0", i)
		}
	}
	for i, e := range req.Demand {
		if e.Quantity < 0 {
			return fmt.Errorf("demand[%d]: quantity must be >= 0", i)
		}
	}
	return nil
}

// scenario converts a validated request. Entities without a location keep an empty
// shape so the engine reports them as missing geometry.
func (req *SolveRequest) scenario(base config.Solver) (engine.Scenario, error) {
	sc := engine.Scenario{Key: req.Scenario}
	if sc.Key == "" {
		sc.Key = model.ScenarioKey(req.City)
	}
	opts := base
	if req.FixedCost != nil {
		opts.FixCost = *req.FixedCost
	}
	if req.TimeLimitSec != nil {
		opts.TimeLimit = time.Duration(*req.TimeLimitSec * float64(time.Second))
	}
	if req.GapLimit != nil {
		opts.GapLimit = *req.GapLimit
	}
	if req.FacilityCapacity != nil {
		opts.FacilityCapacity = *req.FacilityCapacity
	}
	if req.DemandQuantity != nil {
		opts.DemandQuantity = *req.DemandQuantity
	}
	sc.Options = &opts

	for i, e := range req.Demand {
		loc, err := e.shape()
		if err != nil {
			return sc, fmt.Errorf("demand[%d]: %w", i, err)
		}
		sc.Demand = append(sc.Demand, model.DemandPoint{ID: e.ID, Location: loc, Quantity: e.Quantity})
	}
	for i, e := range req.Facilities {
		loc, err := e.shape()
		if err != nil {
			return sc, fmt.Errorf("facilities[%d]: %w", i, err)
		}
		sc.Facilities = append(sc.Facilities, model.Facility{ID: e.ID, Location: loc, Capacity: e.Capacity, FixedCost: e.FixedCost})
	}
	return sc, nil
}

func (e EntityIn) shape() (geo.Shape, error) {
	switch {
	case len(e.Geometry) > 0 && string(e.Geometry) != "null":
		g, err := geojson.UnmarshalGeometry(e.Geometry)
		if err != nil {
			return geo.Shape{}, fmt.Errorf("geometry: %w", err)
		}
		return geo.NewShape(g.Geometry(), geo.CRS(e.CRS).Normalize()), nil
	case e.Lon != nil && e.Lat != nil:
		return geo.Point(*e.Lon, *e.Lat, geo.WGS84), nil
	case e.Lon != nil || e.Lat != nil:
		return geo.Shape{}, fmt.Errorf("both lon and lat are required")
	}
	return geo.Shape{}, nil
}
