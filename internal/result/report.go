package result

import (
	"fmt"
	"strings"
	"time"

	"cflp/internal/opt"
)

type FacilityLoad struct {
	ID          string  `json:"id" yaml:"id"`
	Load        int     `json:"load" yaml:"load"`
	Capacity    int     `json:"capacity" yaml:"capacity"`
	Utilization float64 `json:"utilization" yaml:"utilization"`
}

// Report is a flat summary of one solve.
type Report struct {
	Scenario            string         `json:"scenario" yaml:"scenario"`
	Status              string         `json:"status" yaml:"status"`
	Demand              int            `json:"demand" yaml:"demand"`
	Assigned            int            `json:"assigned" yaml:"assigned"`
	OpenFacilities      []FacilityLoad `json:"openFacilities" yaml:"open_facilities"`
	Objective           float64        `json:"objective" yaml:"objective"`
	Bound               float64        `json:"bound" yaml:"bound"`
	Gap                 float64        `json:"gap" yaml:"gap"`
	AssignmentCost      float64        `json:"assignmentCost" yaml:"assignment_cost"`
	OpeningCost         float64        `json:"openingCost" yaml:"opening_cost"`
	SolvingTime         string         `json:"solvingTime" yaml:"solving_time"`
	SentinelAssignments []string       `json:"sentinelAssignments,omitempty" yaml:"sentinel_assignments,omitempty"`
	Warnings            []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// NewReport summarizes sol. demand is the number of demand points that were offered to
// the solver, so an empty solution for a non-empty problem reads as "no feasible assignment".
func NewReport(scenario string, sol opt.Solution, capacities map[string]int, demand int) Report {
	r := Report{
		Scenario:            scenario,
		Status:              sol.Status.String(),
		Demand:              demand,
		Assigned:            len(sol.Assignments),
		OpenFacilities:      []FacilityLoad{},
		Objective:           sol.Objective,
		Bound:               sol.Bound,
		Gap:                 sol.Gap,
		AssignmentCost:      sol.AssignmentCost,
		OpeningCost:         sol.OpeningCost,
		SolvingTime:         sol.SolvingTime.Round(time.Millisecond).String(),
		SentinelAssignments: sol.SentinelAssignments,
	}
	for _, f := range sol.OpenFacilities {
		fl := FacilityLoad{ID: f, Load: sol.Loads[f], Capacity: capacities[f]}
		if fl.Capacity > 0 {
			fl.Utilization = float64(fl.Load) / float64(fl.Capacity)
		}
		r.OpenFacilities = append(r.OpenFacilities, fl)
	}
	if sol.Empty() && demand > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("no feasible assignment found for %d demand points (status %s)", demand, sol.Status))
	}
	if n := len(sol.SentinelAssignments); n > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d assignments use pairs missing from the cost matrix", n))
	}
	return r
}

// Text renders the report for terminals.
func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s: %s\n", r.Scenario, r.Status)
	fmt.Fprintf(&b, "  assigned %d/%d demand points to %d facilities in %s\n", r.Assigned, r.Demand, len(r.OpenFacilities), r.SolvingTime)
	fmt.Fprintf(&b, "  objective %.3f (assignment %.3f, opening %.3f), gap %.4f\n", r.Objective, r.AssignmentCost, r.OpeningCost, r.Gap)
	for _, f := range r.OpenFacilities {
		fmt.Fprintf(&b, "  %-24s %3d/%-3d %5.1f%%\n", f.ID, f.Load, f.Capacity, 100*f.Utilization)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return b.String()
}
