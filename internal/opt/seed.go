package opt

import (
	"math"
	"sort"

	"cflp/internal/costmatrix"
	"cflp/internal/mip"
)

// instance is a dense view of one CFLP input used by the heuristics.
type instance struct {
	cost     [][]float64 // per unit of demand, sentinel for missing pairs
	sentinel [][]bool
	qty      []int
	capacity []int
	fixed    []float64
}

func newInstance(matrix *costmatrix.Matrix, capacities, demands map[string]int, p Params) *instance {
	ds, fs := matrix.DemandIDs(), matrix.FacilityIDs()
	in := &instance{
		cost:     make([][]float64, len(ds)),
		sentinel: make([][]bool, len(ds)),
		qty:      make([]int, len(ds)),
		capacity: make([]int, len(fs)),
		fixed:    make([]float64, len(fs)),
	}
	for j, f := range fs {
		in.capacity[j] = capacities[f]
		in.fixed[j] = p.fixedCost(f)
	}
	for i, d := range ds {
		in.qty[i] = demands[d]
		in.cost[i] = make([]float64, len(fs))
		in.sentinel[i] = make([]bool, len(fs))
		for j, f := range fs {
			c, ok := matrix.Cost(d, f)
			if !ok {
				c = costmatrix.Sentinel
			}
			in.cost[i][j] = c
			in.sentinel[i][j] = !ok
		}
	}
	return in
}

// lowerBound is a cheap bound on any feasible plan: every demand point at its cheapest
// unit cost, plus the cheapest fixed costs of as many facilities as the largest
// capacities need to cover total demand.
func (in *instance) lowerBound() float64 {
	var lb float64
	total := 0
	for i, q := range in.qty {
		cheapest := math.Inf(1)
		for _, c := range in.cost[i] {
			cheapest = math.Min(cheapest, c)
		}
		if !math.IsInf(cheapest, 1) {
			lb += cheapest * float64(q)
		}
		total += q
	}
	caps := append([]int(nil), in.capacity...)
	sort.Sort(sort.Reverse(sort.IntSlice(caps)))
	fixed := append([]float64(nil), in.fixed...)
	sort.Float64s(fixed)
	for k := 0; k < len(caps) && total > 0; k++ {
		total -= caps[k]
		lb += fixed[k]
	}
	return lb
}

// plan is a complete or partial heuristic assignment; -1 marks an unassigned demand point.
type plan struct {
	assign []int
	load   []int
	count  []int
}

func newPlan(in *instance) plan {
	p := plan{assign: make([]int, len(in.qty)), load: make([]int, len(in.capacity)), count: make([]int, len(in.capacity))}
	for i := range p.assign {
		p.assign[i] = -1
	}
	return p
}

func (p plan) clone() plan {
	return plan{
		assign: append([]int(nil), p.assign...),
		load:   append([]int(nil), p.load...),
		count:  append([]int(nil), p.count...),
	}
}

func (p *plan) place(in *instance, i, j int) {
	p.assign[i] = j
	p.load[j] += in.qty[i]
	p.count[j]++
}

func (p *plan) unplace(in *instance, i int) {
	j := p.assign[i]
	if j < 0 {
		return
	}
	p.assign[i] = -1
	p.load[j] -= in.qty[i]
	p.count[j]--
}

func (p plan) cost(in *instance) float64 {
	var c float64
	for i, j := range p.assign {
		if j >= 0 {
			c += in.cost[i][j] * float64(in.qty[i])
		}
	}
	for j, n := range p.count {
		if n > 0 {
			c += in.fixed[j]
		}
	}
	return c
}

// delta is the marginal cost of serving i from j; sentinel pairs rank after real ones.
func (p plan) delta(in *instance, i, j int) (float64, bool) {
	if in.capacity[j]-p.load[j] < in.qty[i] {
		return 0, false
	}
	d := in.cost[i][j] * float64(in.qty[i])
	if p.count[j] == 0 {
		d += in.fixed[j]
	}
	return d, true
}

func (p plan) cheapest(in *instance, i int) (best int, bestDelta float64, second float64) {
	best, bestDelta, second = -1, math.MaxFloat64, math.MaxFloat64
	for j := range in.capacity {
		d, ok := p.delta(in, i, j)
		if !ok {
			continue
		}
		if best < 0 || better(in, i, j, d, best, bestDelta) {
			second = bestDelta
			best, bestDelta = j, d
		} else if d < second {
			second = d
		}
	}
	return best, bestDelta, second
}

func better(in *instance, i, j int, d float64, k int, dk float64) bool {
	if in.sentinel[i][j] != in.sentinel[i][k] {
		return !in.sentinel[i][j]
	}
	return d < dk
}

func (p plan) complete() bool {
	for _, j := range p.assign {
		if j < 0 {
			return false
		}
	}
	return true
}

func (p plan) start(fm *formulation) map[mip.Var]float64 {
	out := make(map[mip.Var]float64, len(fm.y)+len(p.assign))
	for j, n := range p.count {
		if n > 0 {
			out[fm.y[j]] = 1
		}
	}
	for i, j := range p.assign {
		if j >= 0 {
			out[fm.x[i][j]] = 1
		}
	}
	return out
}

// greedySeed serves demand points in descending quantity order, each from the facility
// with the lowest marginal cost that still has room. It reports false when some demand
// point cannot be placed.
func greedySeed(in *instance) (plan, bool) {
	p := newPlan(in)
	order := make([]int, len(in.qty))
	for i := range order {
		order[i] = i
	}
	// stable insertion sort keeps enumeration order among equal quantities
	for i := 1; i < len(order); i++ {
		for k := i; k > 0 && in.qty[order[k]] > in.qty[order[k-1]]; k-- {
			order[k], order[k-1] = order[k-1], order[k]
		}
	}
	return p, greedyInsert(in, &p, order)
}

func greedyInsert(in *instance, p *plan, removed []int) bool {
	for _, i := range removed {
		j, _, _ := p.cheapest(in, i)
		if j < 0 {
			return false
		}
		p.place(in, i, j)
	}
	return true
}

// regretInsert repeatedly places the demand point that would lose the most by waiting.
func regretInsert(in *instance, p *plan, removed []int) bool {
	pending := append([]int(nil), removed...)
	for len(pending) > 0 {
		pick, pickJ, pickRegret := -1, -1, -1.0
		for k, i := range pending {
			j, d1, d2 := p.cheapest(in, i)
			if j < 0 {
				return false
			}
			regret := d2 - d1
			if pick < 0 || regret > pickRegret {
				pick, pickJ, pickRegret = k, j, regret
			}
		}
		p.place(in, pending[pick], pickJ)
		pending = append(pending[:pick], pending[pick+1:]...)
	}
	return true
}
