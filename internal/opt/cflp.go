// Package opt formulates the capacitated facility location problem as a mixed-integer
// program, solves it through a mip.Solver and decodes the result into domain terms.
package opt

import (
	"errors"
	"fmt"
	"math"
	"time"

	"cflp/internal/costmatrix"
	"cflp/internal/mip"
	"cflp/internal/model"
)

var ErrParams = errors.New("invalid solve parameters")

// Params configures one solve.
type Params struct {
	FixedCost  float64            // opening cost applied to every facility
	FixedCosts map[string]float64 // per-facility overrides
	TimeLimit  time.Duration
	GapLimit   float64
	Backend    mip.Solver // nil selects mip.BranchAndBound
	NoSeed     bool       // skip the heuristic warm start
	// SeedIterations bounds the neighbourhood search refining the greedy warm start;
	// zero picks a size-based default, negative disables the search.
	SeedIterations int
	// MaxExactPairs caps demand×facility pairs handed to branch-and-bound. Larger
	// instances keep the heuristic plan with status TimeLimit. Zero selects
	// DefaultMaxExactPairs, negative removes the cap.
	MaxExactPairs int
}

// DefaultMaxExactPairs keeps the dense simplex tableau of the exact search small enough to
// solve within interactive time limits.
const DefaultMaxExactPairs = 250

func (p Params) exact(pairs int) bool {
	switch {
	case p.MaxExactPairs < 0:
		return true
	case p.MaxExactPairs == 0:
		return pairs <= DefaultMaxExactPairs
	}
	return pairs <= p.MaxExactPairs
}

func (p Params) seedIterations(demand int) int {
	if p.SeedIterations != 0 {
		return p.SeedIterations
	}
	n := 20 * demand
	if n > 2000 {
		n = 2000
	}
	return n
}

func (p Params) fixedCost(f string) float64 {
	if c, ok := p.FixedCosts[f]; ok {
		return c
	}
	return p.FixedCost
}

func (p Params) validate() error {
	if p.FixedCost < 0 || math.IsNaN(p.FixedCost) || math.IsInf(p.FixedCost, 0) {
		return fmt.Errorf("%w: fixed cost %v", ErrParams, p.FixedCost)
	}
	for f, c := range p.FixedCosts {
		if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: fixed cost %v for facility %q", ErrParams, c, f)
		}
	}
	if p.TimeLimit < 0 {
		return fmt.Errorf("%w: time limit %v", ErrParams, p.TimeLimit)
	}
	if p.GapLimit < 0 || p.GapLimit >= 1 || math.IsNaN(p.GapLimit) {
		return fmt.Errorf("%w: gap limit %v", ErrParams, p.GapLimit)
	}
	return nil
}

// Solution is the outcome of one solve. It is never mutated after Solve returns.
type Solution struct {
	OpenFacilities      []string         `json:"openFacilities"`
	Assignments         model.Assignment `json:"assignments"`
	SolvingTime         time.Duration    `json:"solvingTime"`
	Objective           float64          `json:"objective"`
	Bound               float64          `json:"bound"`
	Gap                 float64          `json:"gap"`
	Status              mip.Status       `json:"status"`
	AssignmentCost      float64          `json:"assignmentCost"`
	OpeningCost         float64          `json:"openingCost"`
	Loads               map[string]int   `json:"loads"`
	SentinelAssignments []string         `json:"sentinelAssignments,omitempty"`
	Nodes               int              `json:"nodes"`
	Seeded              bool             `json:"seeded"`
}

// Empty reports whether the solution serves nobody.
func (s Solution) Empty() bool { return len(s.Assignments) == 0 }

// Accepted reports whether the solver reached a usable terminal state.
func (s Solution) Accepted() bool {
	switch s.Status {
	case mip.Optimal, mip.GapLimit, mip.TimeLimit:
		return !s.Empty()
	}
	return false
}

func emptySolution(st mip.Status, elapsed time.Duration) Solution {
	return Solution{
		OpenFacilities: []string{},
		Assignments:    model.Assignment{},
		Loads:          map[string]int{},
		Status:         st,
		SolvingTime:    elapsed,
	}
}

// formulation keeps the variable handles of one CFLP instance.
type formulation struct {
	demand     []string
	facilities []string
	x          [][]mip.Var // x[d][f]
	y          []mip.Var
}

// Solve finds the cheapest opening and assignment plan for matrix.
//
// Every demand id in matrix needs a quantity and every facility id a capacity, otherwise
// a ValidationError is returned before the model is built. An empty matrix yields an empty
// Solution with status NotSolved. Statuses other than Optimal, or GapLimit/TimeLimit with
// an incumbent, yield an empty Solution carrying that status.
func Solve(matrix *costmatrix.Matrix, capacities, demands map[string]int, p Params) (Solution, error) {
	if err := p.validate(); err != nil {
		return Solution{}, err
	}
	if err := validate(matrix, capacities, demands); err != nil {
		return Solution{}, err
	}
	if matrix == nil || matrix.Empty() {
		return emptySolution(mip.NotSolved, 0), nil
	}

	start := time.Now()
	var deadline time.Time
	if p.TimeLimit > 0 {
		deadline = start.Add(p.TimeLimit)
	}
	m, fm, err := formulate(matrix, capacities, demands, p)
	if err != nil {
		return Solution{}, err
	}
	exact := p.exact(len(fm.demand) * len(fm.facilities))
	var (
		seed   plan
		seeded bool
		in     *instance
	)
	if !p.NoSeed || !exact {
		in = newInstance(matrix, capacities, demands, p)
		if seed, seeded = greedySeed(in); seeded {
			seed = improve(in, seed, p.seedIterations(len(fm.demand)), 1, deadline)
			m.SetStart(seed.start(fm))
		}
	}

	var res mip.Result
	switch remaining := time.Until(deadline); {
	case !exact || (!deadline.IsZero() && remaining <= 0):
		res = heuristicResult(m, fm, in, seed, seeded)
	default:
		if !deadline.IsZero() {
			m.SetTimeLimit(remaining)
		}
		backend := p.Backend
		if backend == nil {
			backend = mip.BranchAndBound{}
		}
		res = backend.Solve(m)
	}
	elapsed := time.Since(start)
	if !res.Accepted() {
		sol := emptySolution(res.Status, elapsed)
		sol.Bound = res.Bound
		sol.Nodes = res.Nodes
		return sol, nil
	}
	sol := decode(res, fm, matrix, demands, p)
	sol.SolvingTime = elapsed
	sol.Seeded = seeded
	return sol, nil
}

// heuristicResult reports the warm start as a TimeLimit result, bounded below by
// lowerBound. Without a plan there is no incumbent and the result is not accepted.
func heuristicResult(m *mip.Model, fm *formulation, in *instance, seed plan, ok bool) mip.Result {
	if in == nil || !ok {
		return mip.Result{Status: mip.TimeLimit}
	}
	values := make([]float64, m.NumVars())
	for v, val := range seed.start(fm) {
		values[v] = val
	}
	obj := seed.cost(in)
	res := mip.WithValues(mip.TimeLimit, obj, values)
	res.Bound = math.Min(in.lowerBound(), obj)
	if obj != 0 {
		res.Gap = (obj - res.Bound) / math.Abs(obj)
	}
	return res
}

func validate(matrix *costmatrix.Matrix, capacities, demands map[string]int) error {
	if matrix == nil {
		return nil
	}
	for i, d := range matrix.DemandIDs() {
		q, ok := demands[d]
		if !ok || q <= 0 {
			return &model.ValidationError{Kind: model.MissingDemand, Entity: "demand point", ID: d, Index: i}
		}
	}
	for i, f := range matrix.FacilityIDs() {
		c, ok := capacities[f]
		if !ok || c < 0 {
			return &model.ValidationError{Kind: model.MissingCapacity, Entity: "facility", ID: f, Index: i}
		}
	}
	return nil
}

func formulate(matrix *costmatrix.Matrix, capacities, demands map[string]int, p Params) (*mip.Model, *formulation, error) {
	fm := &formulation{demand: matrix.DemandIDs(), facilities: matrix.FacilityIDs()}
	m := mip.NewModel()
	m.SetTimeLimit(p.TimeLimit)
	m.SetGapLimit(p.GapLimit)

	fm.y = make([]mip.Var, len(fm.facilities))
	for j, f := range fm.facilities {
		fm.y[j] = m.AddBinary("open[" + f + "]")
	}
	fm.x = make([][]mip.Var, len(fm.demand))
	for i, d := range fm.demand {
		fm.x[i] = make([]mip.Var, len(fm.facilities))
		for j, f := range fm.facilities {
			fm.x[i][j] = m.AddBinary("assign[" + d + "," + f + "]")
		}
	}

	var obj mip.Expr
	for i, d := range fm.demand {
		q := float64(demands[d])
		for j, f := range fm.facilities {
			obj = obj.Plus(fm.x[i][j], matrix.CostOrSentinel(d, f)*q)
		}
	}
	for j, f := range fm.facilities {
		obj = obj.Plus(fm.y[j], p.fixedCost(f))
	}
	if err := m.SetObjective(obj, true); err != nil {
		return nil, nil, err
	}

	for i := range fm.demand {
		row := make(mip.Expr, 0, len(fm.facilities))
		for j := range fm.facilities {
			row = row.Plus(fm.x[i][j], 1)
			if err := m.AddConstraint(mip.Expr{{Var: fm.x[i][j], Coef: 1}, {Var: fm.y[j], Coef: -1}}, mip.LessEq, 0); err != nil {
				return nil, nil, err
			}
		}
		if err := m.AddConstraint(row, mip.Equal, 1); err != nil {
			return nil, nil, err
		}
	}
	for j, f := range fm.facilities {
		row := make(mip.Expr, 0, len(fm.demand)+1)
		for i, d := range fm.demand {
			row = row.Plus(fm.x[i][j], float64(demands[d]))
		}
		row = row.Plus(fm.y[j], -float64(capacities[f]))
		if err := m.AddConstraint(row, mip.LessEq, 0); err != nil {
			return nil, nil, err
		}
	}
	return m, fm, nil
}

// decode reads open facilities and assignments off an accepted result. A facility is open
// when its variable exceeds 0.5; each demand point takes the first facility in enumeration
// order whose assignment variable exceeds 0.5.
func decode(res mip.Result, fm *formulation, matrix *costmatrix.Matrix, demands map[string]int, p Params) Solution {
	sol := Solution{
		OpenFacilities: []string{},
		Assignments:    model.Assignment{},
		Loads:          map[string]int{},
		Objective:      res.Objective,
		Bound:          res.Bound,
		Gap:            res.Gap,
		Status:         res.Status,
		Nodes:          res.Nodes,
	}
	for j, f := range fm.facilities {
		if res.Value(fm.y[j]) > 0.5 {
			sol.OpenFacilities = append(sol.OpenFacilities, f)
			sol.OpeningCost += p.fixedCost(f)
		}
	}
	for i, d := range fm.demand {
		for j, f := range fm.facilities {
			if res.Value(fm.x[i][j]) <= 0.5 {
				continue
			}
			sol.Assignments[d] = f
			sol.Loads[f] += demands[d]
			if c, ok := matrix.Cost(d, f); ok {
				sol.AssignmentCost += c * float64(demands[d])
			} else {
				sol.SentinelAssignments = append(sol.SentinelAssignments, d)
			}
			break
		}
	}
	return sol
}
