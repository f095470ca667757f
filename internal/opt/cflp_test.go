package opt

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cflp/internal/costmatrix"
	"cflp/internal/mip"
	"cflp/internal/model"
)

func matrix(t *testing.T, rows map[string]map[string]float64) *costmatrix.Matrix {
	t.Helper()
	m, err := costmatrix.FromMap(rows)
	require.NoError(t, err)
	return m
}

func exact(fixed float64) Params { return Params{FixedCost: fixed, TimeLimit: time.Minute} }

// requireValid checks the properties every accepted solution must hold.
func requireValid(t *testing.T, sol Solution, m *costmatrix.Matrix, caps, qty map[string]int) {
	t.Helper()
	load := map[string]int{}
	open := map[string]bool{}
	for _, f := range sol.OpenFacilities {
		open[f] = true
	}
	for d, f := range sol.Assignments {
		_, ok := qty[d]
		require.True(t, ok, "unknown demand %s", d)
		_, ok = caps[f]
		require.True(t, ok, "unknown facility %s", f)
		require.True(t, open[f], "%s assigned to closed %s", d, f)
		load[f] += qty[d]
	}
	for f, l := range load {
		require.LessOrEqual(t, l, caps[f])
	}
	require.Equal(t, load, sol.Loads)
	require.Len(t, sol.Assignments, len(m.DemandIDs()))
}

func TestTwoDemandTwoFacilities(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{
		"PRAC1": {"F_A": 10, "F_B": 20},
		"PRAC2": {"F_A": 5, "F_B": 12},
	})
	caps := map[string]int{"F_A": 2, "F_B": 1}
	qty := map[string]int{"PRAC1": 1, "PRAC2": 1}

	sol, err := Solve(m, caps, qty, exact(1.0))
	require.NoError(t, err)
	require.Equal(t, mip.Optimal, sol.Status)
	require.Equal(t, []string{"F_A"}, sol.OpenFacilities)
	require.Equal(t, model.Assignment{"PRAC1": "F_A", "PRAC2": "F_A"}, sol.Assignments)
	require.InDelta(t, 16, sol.Objective, 1e-6)
	require.InDelta(t, 15, sol.AssignmentCost, 1e-9)
	require.InDelta(t, 1, sol.OpeningCost, 1e-9)
	requireValid(t, sol, m, caps, qty)
}

func TestCapacitySpillover(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{
		"PRAC1": {"F_A": 1, "F_B": 10},
		"PRAC2": {"F_A": 2, "F_B": 8},
		"PRAC3": {"F_A": 3, "F_B": 5},
	})
	caps := map[string]int{"F_A": 2, "F_B": 1}
	qty := map[string]int{"PRAC1": 1, "PRAC2": 1, "PRAC3": 1}

	sol, err := Solve(m, caps, qty, exact(0.5))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"F_A", "F_B"}, sol.OpenFacilities)
	require.Equal(t, "F_B", sol.Assignments["PRAC3"])
	require.Equal(t, "F_A", sol.Assignments["PRAC1"])
	require.Equal(t, "F_A", sol.Assignments["PRAC2"])
	require.InDelta(t, 9, sol.Objective, 1e-6)
	requireValid(t, sol, m, caps, qty)
}

func TestZeroCapacityFacilityIsNeverUsed(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{"PRAC1": {"F_A": 10, "F_B": 1}})
	caps := map[string]int{"F_A": 0, "F_B": 1}
	qty := map[string]int{"PRAC1": 1}
	sol, err := Solve(m, caps, qty, exact(0.001))
	require.NoError(t, err)
	require.Equal(t, model.Assignment{"PRAC1": "F_B"}, sol.Assignments)
	require.NotContains(t, sol.OpenFacilities, "F_A")

	// even when the zero-capacity facility is the cheap one
	m = matrix(t, map[string]map[string]float64{"PRAC1": {"F_A": 1, "F_B": 10}})
	sol, err = Solve(m, caps, qty, exact(0.001))
	require.NoError(t, err)
	require.Equal(t, model.Assignment{"PRAC1": "F_B"}, sol.Assignments)
}

func TestHighOpeningCostConsolidates(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{
		"P1": {"F1": 1, "F2": 5},
		"P2": {"F1": 5, "F2": 1},
	})
	caps := map[string]int{"F1": 2, "F2": 2}
	qty := map[string]int{"P1": 1, "P2": 1}

	cheap, err := Solve(m, caps, qty, exact(0.001))
	require.NoError(t, err)
	require.Equal(t, []string{"F1", "F2"}, cheap.OpenFacilities)

	dear, err := Solve(m, caps, qty, exact(100))
	require.NoError(t, err)
	require.Len(t, dear.OpenFacilities, 1)
	require.InDelta(t, 106, dear.Objective, 1e-6)
}

func TestUniformCostOpensMinimumFacilities(t *testing.T) {
	rows := map[string]map[string]float64{}
	caps := map[string]int{}
	qty := map[string]int{}
	for i := 0; i < 10; i++ {
		d := fmt.Sprintf("PRAC_%d", i)
		rows[d] = map[string]float64{}
		qty[d] = model.DefaultDemand
		for j := 0; j < 10; j++ {
			f := fmt.Sprintf("PHARM_%d", j)
			rows[d][f] = 100
			caps[f] = model.DefaultCapacity
		}
	}
	m := matrix(t, rows)
	sol, err := Solve(m, caps, qty, Params{FixedCost: 0.001, TimeLimit: time.Minute, GapLimit: 0.01})
	require.NoError(t, err)
	require.True(t, sol.Accepted())
	require.Len(t, sol.OpenFacilities, 2)
	require.InDelta(t, 1000, sol.AssignmentCost, 1e-9)
	requireValid(t, sol, m, caps, qty)
}

func TestEmptyInput(t *testing.T) {
	sol, err := Solve(costmatrix.Empty(), map[string]int{}, map[string]int{}, exact(1))
	require.NoError(t, err)
	require.Equal(t, []string{}, sol.OpenFacilities)
	require.Equal(t, model.Assignment{}, sol.Assignments)
	require.Zero(t, sol.SolvingTime)
	require.Equal(t, mip.NotSolved, sol.Status)
	require.False(t, sol.Accepted())

	sol, err = Solve(nil, nil, nil, exact(1))
	require.NoError(t, err)
	require.True(t, sol.Empty())
}

func TestValidationErrors(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{"P1": {"F1": 1}})

	_, err := Solve(m, map[string]int{"F1": 1}, map[string]int{}, exact(1))
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, model.MissingDemand, ve.Kind)
	require.Equal(t, "P1", ve.ID)

	_, err = Solve(m, map[string]int{}, map[string]int{"P1": 1}, exact(1))
	require.ErrorAs(t, err, &ve)
	require.Equal(t, model.MissingCapacity, ve.Kind)
	require.Equal(t, "F1", ve.ID)

	_, err = Solve(m, map[string]int{"F1": 1}, map[string]int{"P1": 1}, Params{FixedCost: -1})
	require.ErrorIs(t, err, ErrParams)
	_, err = Solve(m, map[string]int{"F1": 1}, map[string]int{"P1": 1}, Params{GapLimit: 1})
	require.ErrorIs(t, err, ErrParams)
}

func TestInfeasibleCapacityYieldsEmptySolution(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{
		"P1": {"F1": 1},
		"P2": {"F1": 1},
	})
	sol, err := Solve(m, map[string]int{"F1": 1}, map[string]int{"P1": 1, "P2": 1}, exact(1))
	require.NoError(t, err)
	require.Equal(t, mip.Infeasible, sol.Status)
	require.True(t, sol.Empty())
	require.False(t, sol.Accepted())
	require.Empty(t, sol.OpenFacilities)
}

func TestSentinelAssignmentsAreFlagged(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{
		"P1": {"F_A": 1},
		"P2": {"F_A": 2},
		"P3": {"F_B": 1},
	})
	caps := map[string]int{"F_A": 1, "F_B": 2}
	qty := map[string]int{"P1": 1, "P2": 1, "P3": 1}
	sol, err := Solve(m, caps, qty, exact(0.001))
	require.NoError(t, err)
	require.True(t, sol.Accepted())
	require.Equal(t, model.Assignment{"P1": "F_A", "P2": "F_B", "P3": "F_B"}, sol.Assignments)
	require.Equal(t, []string{"P2"}, sol.SentinelAssignments)
	require.InDelta(t, 2, sol.AssignmentCost, 1e-9)
}

func TestOpenFacilitiesMonotoneInFixedCost(t *testing.T) {
	rows := map[string]map[string]float64{}
	caps := map[string]int{}
	qty := map[string]int{}
	for i := 0; i < 6; i++ {
		d := fmt.Sprintf("D%d", i)
		rows[d] = map[string]float64{}
		qty[d] = 1 + i%2
		for j := 0; j < 4; j++ {
			f := fmt.Sprintf("F%d", j)
			rows[d][f] = float64(1 + (i*7+j*3)%11)
			caps[f] = 4
		}
	}
	m := matrix(t, rows)
	prev := len(m.FacilityIDs()) + 1
	for _, fixed := range []float64{0, 0.5, 2, 5, 10, 50, 1000} {
		sol, err := Solve(m, caps, qty, exact(fixed))
		require.NoError(t, err)
		require.Equal(t, mip.Optimal, sol.Status, "fixed=%v", fixed)
		requireValid(t, sol, m, caps, qty)
		require.LessOrEqual(t, len(sol.OpenFacilities), prev, "fixed=%v", fixed)
		prev = len(sol.OpenFacilities)
	}
	require.Equal(t, 3, prev)
}

func TestSeedDoesNotChangeOptimum(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{
		"PRAC1": {"F_A": 1, "F_B": 10},
		"PRAC2": {"F_A": 2, "F_B": 8},
		"PRAC3": {"F_A": 3, "F_B": 5},
	})
	caps := map[string]int{"F_A": 2, "F_B": 1}
	qty := map[string]int{"PRAC1": 1, "PRAC2": 1, "PRAC3": 1}
	seeded, err := Solve(m, caps, qty, exact(0.5))
	require.NoError(t, err)
	require.True(t, seeded.Seeded)
	p := exact(0.5)
	p.NoSeed = true
	plain, err := Solve(m, caps, qty, p)
	require.NoError(t, err)
	require.False(t, plain.Seeded)
	require.Equal(t, seeded.Assignments, plain.Assignments)
	require.InDelta(t, seeded.Objective, plain.Objective, 1e-6)
}

func TestPerFacilityFixedCost(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{"P1": {"F1": 1, "F2": 2}})
	caps := map[string]int{"F1": 1, "F2": 1}
	qty := map[string]int{"P1": 1}
	p := exact(0)
	p.FixedCosts = map[string]float64{"F1": 10}
	sol, err := Solve(m, caps, qty, p)
	require.NoError(t, err)
	require.Equal(t, []string{"F2"}, sol.OpenFacilities)
	require.Zero(t, sol.OpeningCost)
}

type stubBackend struct{ res mip.Result }

func (s stubBackend) Solve(*mip.Model) mip.Result { return s.res }

func TestUnacceptedStatusesYieldEmptySolution(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{"P1": {"F1": 1}})
	caps := map[string]int{"F1": 1}
	qty := map[string]int{"P1": 1}
	for _, st := range []mip.Status{mip.Unbounded, mip.Error, mip.TimeLimit, mip.NotSolved} {
		p := exact(1)
		p.Backend = stubBackend{res: mip.Result{Status: st}}
		sol, err := Solve(m, caps, qty, p)
		require.NoError(t, err)
		require.Equal(t, st, sol.Status)
		require.True(t, sol.Empty())
	}

	// time-limited with an incumbent is accepted; variables are y[F1], x[P1,F1]
	p := exact(1)
	p.Backend = stubBackend{res: mip.WithValues(mip.TimeLimit, 2, []float64{1, 1})}
	sol, err := Solve(m, caps, qty, p)
	require.NoError(t, err)
	require.True(t, sol.Accepted())
	require.Equal(t, model.Assignment{"P1": "F1"}, sol.Assignments)
}

func TestMetricsStore(t *testing.T) {
	sol := Solution{Status: mip.Optimal, OpenFacilities: []string{"F1"}, Assignments: model.Assignment{"P1": "F1"}}
	RecordMetrics("berlin", "bnb", MetricsOf(sol))
	got := GetMetrics("berlin")
	require.Contains(t, got, "bnb")
	require.Equal(t, "Optimal", got["bnb"].Status)
	require.Equal(t, 1, got["bnb"].OpenFacilities)
	require.Empty(t, GetMetrics("nowhere"))
}

// grid builds a dense instance with uneven costs where total capacity is twice total demand.
func grid(t *testing.T, demand, facilities int) (*costmatrix.Matrix, map[string]int, map[string]int) {
	t.Helper()
	rows := map[string]map[string]float64{}
	caps := map[string]int{}
	qty := map[string]int{}
	for i := 0; i < demand; i++ {
		d := fmt.Sprintf("D%02d", i)
		rows[d] = map[string]float64{}
		qty[d] = 1 + i%3
		for j := 0; j < facilities; j++ {
			rows[d][fmt.Sprintf("F%02d", j)] = float64(1 + (i*17+j*29)%37)
		}
	}
	for j := 0; j < facilities; j++ {
		caps[fmt.Sprintf("F%02d", j)] = (4*demand)/facilities + 1
	}
	return matrix(t, rows), caps, qty
}

func TestLargeInstanceKeepsHeuristicPlan(t *testing.T) {
	m, caps, qty := grid(t, 40, 15)
	start := time.Now()
	sol, err := Solve(m, caps, qty, exact(20))
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, mip.TimeLimit, sol.Status)
	require.True(t, sol.Accepted())
	require.True(t, sol.Seeded)
	require.Zero(t, sol.Nodes)
	requireValid(t, sol, m, caps, qty)
	require.InDelta(t, sol.AssignmentCost+sol.OpeningCost, sol.Objective, 1e-6)
	require.LessOrEqual(t, sol.Bound, sol.Objective)
	require.GreaterOrEqual(t, sol.Gap, 0.0)
	require.Less(t, sol.Gap, 1.0)
}

func TestTimeLimitBoundsExactSearch(t *testing.T) {
	m, caps, qty := grid(t, 30, 12)
	p := exact(20)
	p.TimeLimit = 300 * time.Millisecond
	p.MaxExactPairs = -1
	start := time.Now()
	sol, err := Solve(m, caps, qty, p)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
	require.Contains(t, []mip.Status{mip.TimeLimit, mip.GapLimit, mip.Optimal}, sol.Status)
	require.True(t, sol.Accepted())
	requireValid(t, sol, m, caps, qty)
	require.LessOrEqual(t, sol.Bound, sol.Objective+1e-6)
}

func TestNegativeTimeLimitIsRejected(t *testing.T) {
	m := matrix(t, map[string]map[string]float64{"P1": {"F1": 1}})
	p := exact(1)
	p.TimeLimit = -time.Second
	_, err := Solve(m, map[string]int{"F1": 1}, map[string]int{"P1": 1}, p)
	require.ErrorIs(t, err, ErrParams)
}
