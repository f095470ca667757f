package result

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cflp/internal/costmatrix"
	"cflp/internal/mip"
	"cflp/internal/model"
	"cflp/internal/opt"
	"cflp/internal/store"
)

func fixture(t *testing.T) (*costmatrix.Matrix, map[string]int, map[string]int) {
	t.Helper()
	m, err := costmatrix.FromMap(map[string]map[string]float64{
		"PRAC1": {"F_A": 1, "F_B": 10},
		"PRAC2": {"F_A": 2, "F_B": 8},
		"PRAC3": {"F_A": 3, "F_B": 5},
	})
	require.NoError(t, err)
	return m, map[string]int{"F_A": 2, "F_B": 1}, map[string]int{"PRAC1": 1, "PRAC2": 1, "PRAC3": 1}
}

func TestValidateAcceptsSolverOutput(t *testing.T) {
	m, caps, qty := fixture(t)
	sol, err := opt.Solve(m, caps, qty, opt.Params{FixedCost: 0.5, TimeLimit: time.Minute})
	require.NoError(t, err)
	require.NoError(t, Validate(sol, m, caps, qty))
}

func TestValidateReportsEveryViolation(t *testing.T) {
	m, caps, qty := fixture(t)
	sol := opt.Solution{
		Status:         mip.Optimal,
		OpenFacilities: []string{"F_B", "F_X"},
		Assignments:    model.Assignment{"PRAC1": "F_B", "PRAC2": "F_B", "GHOST": "F_A"},
	}
	err := Validate(sol, m, caps, qty)
	require.ErrorIs(t, err, ErrInvalidSolution)
	msg := err.Error()
	for _, want := range []string{
		`open facility "F_X" unknown`,
		`"GHOST" not in cost matrix`,
		`assigned to closed facility "F_A"`,
		`"F_B" serves 2 over capacity 1`,
		`"PRAC3" unserved`,
	} {
		require.Contains(t, msg, want)
	}
}

func TestPersistOnlyAcceptedSolutions(t *testing.T) {
	st := store.NewMemory()
	e := Extractor{Store: st}

	ok, err := e.Persist(t.Context(), "berlin", opt.Solution{Status: mip.Infeasible, Assignments: model.Assignment{}})
	require.NoError(t, err)
	require.False(t, ok)
	_, err = st.LoadAssignment(t.Context(), "berlin")
	require.ErrorIs(t, err, store.ErrNotFound)

	sol := opt.Solution{Status: mip.Optimal, OpenFacilities: []string{"F_A"}, Assignments: model.Assignment{"PRAC1": "F_A"}}
	ok, err = e.Persist(t.Context(), "berlin", sol)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := st.LoadAssignment(t.Context(), "berlin")
	require.NoError(t, err)
	require.Equal(t, sol.Assignments, got)
}

type brokenStore struct{ *store.Memory }

func (brokenStore) SaveAssignment(context.Context, string, model.Assignment) error {
	return errors.New("read-only file system")
}

func TestPersistFailureIsReturnedNotFatal(t *testing.T) {
	e := Extractor{Store: brokenStore{store.NewMemory()}}
	sol := opt.Solution{Status: mip.GapLimit, Assignments: model.Assignment{"PRAC1": "F_A"}}
	ok, err := e.Persist(t.Context(), "berlin", sol)
	require.False(t, ok)
	require.EqualError(t, err, "read-only file system")
	require.Equal(t, "F_A", sol.Assignments["PRAC1"])
}

func TestReport(t *testing.T) {
	m, caps, qty := fixture(t)
	sol, err := opt.Solve(m, caps, qty, opt.Params{FixedCost: 0.5, TimeLimit: time.Minute})
	require.NoError(t, err)
	r := NewReport("berlin", sol, caps, len(qty))
	require.Equal(t, 3, r.Assigned)
	require.Len(t, r.OpenFacilities, 2)
	require.Equal(t, FacilityLoad{ID: "F_A", Load: 2, Capacity: 2, Utilization: 1}, r.OpenFacilities[0])
	require.Empty(t, r.Warnings)
	require.Contains(t, r.Text(), "assigned 3/3 demand points to 2 facilities")

	empty := NewReport("berlin", opt.Solution{Status: mip.Infeasible}, caps, 3)
	require.Len(t, empty.Warnings, 1)
	require.True(t, strings.Contains(empty.Text(), "no feasible assignment"))
}
