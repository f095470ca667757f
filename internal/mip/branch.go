package mip

import (
	"container/heap"
	"errors"
	"math"
	"time"
)

// BranchAndBound is a best-bound branch-and-bound search over LP relaxations. It branches
// on the most fractional integer variable, lowest index first on ties, so results are
// deterministic for a given model.
type BranchAndBound struct {
	// NodeLimit caps explored nodes; zero means unlimited. Hitting it reports TimeLimit.
	NodeLimit int
}

type node struct {
	bound  float64
	seq    int
	lb, ub []float64
	x      []float64
}

type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].bound != q[j].bound {
		return q[i].bound < q[j].bound
	}
	return q[i].seq < q[j].seq
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any) { *q = append(*q, x.(*node)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}

type search struct {
	p        *problem
	gapLimit float64
	deadline time.Time
	queue    nodeQueue
	seq      int
	nodes    int
	incObj   float64
	inc      []float64
	lost     float64 // lowest bound of subtrees dropped after LP failures
	lastErr  error
	expired  bool
}

type relaxation struct {
	obj float64
	x   []float64
	err error
}

// relax solves one relaxation, giving up at the deadline. lp.Simplex cannot be
// interrupted, so an abandoned relaxation finishes in the background and its result is
// discarded.
func (s *search) relax(lb, ub []float64) (float64, []float64, error) {
	if s.deadline.IsZero() {
		return s.p.relax(lb, ub)
	}
	wait := time.Until(s.deadline)
	if wait <= 0 {
		return 0, nil, errDeadline
	}
	done := make(chan relaxation, 1)
	go func() {
		obj, x, err := s.p.relax(lb, ub)
		done <- relaxation{obj: obj, x: x, err: err}
	}()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.obj, r.x, r.err
	case <-timer.C:
		return 0, nil, errDeadline
	}
}

func (s *search) offer(obj float64, x []float64) {
	if s.inc == nil || obj < s.incObj-absTol(s.incObj) {
		s.incObj = obj
		s.inc = x
	}
}

func (s *search) prunable(bound float64) bool {
	return s.inc != nil && bound >= s.incObj-absTol(s.incObj)
}

func absTol(v float64) float64 { return 1e-9 * math.Max(1, math.Abs(v)) }

func gap(inc, bound float64) float64 {
	if math.IsInf(bound, -1) || math.IsNaN(bound) {
		return 1
	}
	g := (inc - bound) / math.Max(math.Abs(inc), 1e-10)
	if g < 0 {
		return 0
	}
	return g
}

// Solve implements Solver.
func (b BranchAndBound) Solve(m *Model) Result {
	start := time.Now()
	p := compile(m)
	s := &search{p: p, gapLimit: m.gapLimit, lost: math.Inf(1)}
	if m.timeLimit > 0 {
		s.deadline = start.Add(m.timeLimit)
	}

	if x, ok := startVector(p, m.start); ok {
		s.offer(p.objective(x), x)
	}

	res := s.run(b.NodeLimit)
	res.Nodes = s.nodes
	res.Elapsed = time.Since(start)
	if !m.minimize {
		res.Objective, res.Bound = -res.Objective, -res.Bound
	}
	return res
}

func (s *search) run(nodeLimit int) Result {
	rootObj, rootX, err := s.relax(s.p.lb, s.p.ub)
	s.nodes++
	switch {
	case errors.Is(err, errDeadline):
		return s.finish(TimeLimit, s.p.boxBound())
	case errors.Is(err, errInfeasible):
		return Result{Status: Infeasible}
	case errors.Is(err, errUnbounded):
		return Result{Status: Unbounded}
	case err != nil:
		return Result{Status: Error, Err: err}
	}
	s.consider(rootObj, append([]float64(nil), s.p.lb...), append([]float64(nil), s.p.ub...), rootX)

	for len(s.queue) > 0 {
		bound := math.Min(s.queue[0].bound, s.lost)
		if s.inc != nil {
			if s.incObj-bound <= absTol(s.incObj) {
				return s.finish(Optimal, bound)
			}
			if gap(s.incObj, bound) <= s.gapLimit {
				return s.finish(GapLimit, bound)
			}
		}
		if (!s.deadline.IsZero() && time.Now().After(s.deadline)) || (nodeLimit > 0 && s.nodes >= nodeLimit) {
			return s.finish(TimeLimit, bound)
		}

		n := heap.Pop(&s.queue).(*node)
		if s.prunable(n.bound) {
			continue
		}
		j := s.branchVar(n.x)
		v := n.x[j]

		down := append([]float64(nil), n.ub...)
		down[j] = math.Floor(v)
		s.child(n, n.lb, down)

		up := append([]float64(nil), n.lb...)
		up[j] = math.Ceil(v)
		s.child(n, up, n.ub)

		if s.expired {
			// the popped node is only partly explored, so its bound still holds
			bound := math.Min(n.bound, s.lost)
			if len(s.queue) > 0 {
				bound = math.Min(bound, s.queue[0].bound)
			}
			return s.finish(TimeLimit, bound)
		}
	}

	if s.inc == nil {
		if !math.IsInf(s.lost, 1) {
			return Result{Status: Error, Err: s.lastErr, Bound: s.lost}
		}
		return Result{Status: Infeasible}
	}
	if !math.IsInf(s.lost, 1) && s.incObj-s.lost > absTol(s.incObj) {
		if gap(s.incObj, s.lost) <= s.gapLimit {
			return s.finish(GapLimit, s.lost)
		}
		r := s.finish(Error, s.lost)
		r.Err = s.lastErr
		return r
	}
	return s.finish(Optimal, s.incObj)
}

func (s *search) child(parent *node, lb, ub []float64) {
	if s.expired {
		return
	}
	obj, x, err := s.relax(lb, ub)
	s.nodes++
	switch {
	case errors.Is(err, errDeadline):
		s.expired = true
		return
	case errors.Is(err, errInfeasible):
		return
	case err != nil:
		// The subtree cannot be certified; keep its parent bound as a floor on the gap.
		s.lost = math.Min(s.lost, parent.bound)
		s.lastErr = err
		return
	}
	s.consider(obj, lb, ub, x)
}

// consider either records an integral relaxation as incumbent or queues the node.
func (s *search) consider(obj float64, lb, ub, x []float64) {
	if s.prunable(obj) {
		return
	}
	if s.integral(x) {
		snapped := s.snap(x)
		s.offer(s.p.objective(snapped), snapped)
		return
	}
	s.seq++
	heap.Push(&s.queue, &node{bound: obj, seq: s.seq, lb: lb, ub: ub, x: x})
}

func (s *search) integral(x []float64) bool {
	for j, isInt := range s.p.integer {
		if isInt && math.Abs(x[j]-math.Round(x[j])) > intTol {
			return false
		}
	}
	return true
}

func (s *search) snap(x []float64) []float64 {
	out := append([]float64(nil), x...)
	for j, isInt := range s.p.integer {
		if isInt {
			out[j] = math.Round(out[j])
		}
	}
	return out
}

// branchVar picks the most fractional integer variable; only called on non-integral x.
func (s *search) branchVar(x []float64) int {
	best, score := -1, -1.0
	for j, isInt := range s.p.integer {
		if !isInt {
			continue
		}
		f := x[j] - math.Floor(x[j])
		d := math.Min(f, 1-f)
		if d > intTol && d > score {
			best, score = j, d
		}
	}
	return best
}

func (s *search) finish(st Status, bound float64) Result {
	r := Result{Status: st, Bound: bound}
	if s.inc != nil {
		r.Objective = s.incObj
		r.Gap = gap(s.incObj, bound)
		r.values = s.inc
	}
	return r
}

func startVector(p *problem, start map[Var]float64) ([]float64, bool) {
	if len(start) == 0 {
		return nil, false
	}
	x := append([]float64(nil), p.lb...)
	for v, val := range start {
		if int(v) < 0 || int(v) >= p.n {
			return nil, false
		}
		x[v] = val
	}
	if !p.feasible(x) {
		return nil, false
	}
	return x, true
}
