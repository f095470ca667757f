package mip

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	feasTol    = 1e-7
	intTol     = 1e-6
	simplexTol = 1e-10
)

var (
	errInfeasible = errors.New("relaxation infeasible")
	errUnbounded  = errors.New("relaxation unbounded")
	errDeadline   = errors.New("time limit reached during relaxation")
)

// problem is a Model compiled to minimization form.
type problem struct {
	n       int
	cost    []float64 // minimization objective coefficients
	rows    []constraint
	integer []bool
	lb, ub  []float64
}

func compile(m *Model) *problem {
	p := &problem{
		n:       len(m.vars),
		cost:    make([]float64, len(m.vars)),
		rows:    m.cons,
		integer: make([]bool, len(m.vars)),
		lb:      make([]float64, len(m.vars)),
		ub:      make([]float64, len(m.vars)),
	}
	sign := 1.0
	if !m.minimize {
		sign = -1
	}
	for _, t := range m.obj {
		p.cost[t.Var] += sign * t.Coef
	}
	for i, v := range m.vars {
		p.integer[i] = v.integer
		p.lb[i], p.ub[i] = v.lb, v.ub
	}
	return p
}

// boxBound is the objective bound implied by variable bounds alone. It is -Inf when a
// variable with a negative cost has no upper bound.
func (p *problem) boxBound() float64 {
	var f float64
	for j, c := range p.cost {
		switch {
		case c > 0:
			f += c * p.lb[j]
		case c < 0:
			f += c * p.ub[j]
		}
	}
	return f
}

func (p *problem) objective(x []float64) float64 {
	var f float64
	for j, c := range p.cost {
		f += c * x[j]
	}
	return f
}

// feasible checks bounds, integrality and every constraint.
func (p *problem) feasible(x []float64) bool {
	for j := 0; j < p.n; j++ {
		if x[j] < p.lb[j]-feasTol || x[j] > p.ub[j]+feasTol {
			return false
		}
		if p.integer[j] && math.Abs(x[j]-math.Round(x[j])) > intTol {
			return false
		}
	}
	for _, r := range p.rows {
		var lhs float64
		for _, t := range r.expr {
			lhs += t.Coef * x[t.Var]
		}
		tol := feasTol * math.Max(1, math.Abs(r.rhs))
		switch r.sense {
		case LessEq:
			if lhs > r.rhs+tol {
				return false
			}
		case GreaterEq:
			if lhs < r.rhs-tol {
				return false
			}
		case Equal:
			if math.Abs(lhs-r.rhs) > tol {
				return false
			}
		}
	}
	return true
}

// relax solves the LP relaxation under node bounds [lb, ub].
//
// The LP is brought to the standard form min c'x, Ax = b, x >= 0 that lp.Simplex expects:
// variables are shifted by their lower bound, fixed variables are substituted out, each
// inequality gets its own slack and finite upper bounds become rows unless an equality
// row with non-negative coefficients already implies them.
func (p *problem) relax(lb, ub []float64) (float64, []float64, error) {
	x := make([]float64, p.n)
	col := make([]int, p.n)
	var free []int
	shift := 0.0
	for j := 0; j < p.n; j++ {
		if ub[j] < lb[j]-feasTol {
			return 0, nil, errInfeasible
		}
		x[j] = lb[j]
		shift += p.cost[j] * lb[j]
		col[j] = -1
		if ub[j]-lb[j] > feasTol {
			col[j] = len(free)
			free = append(free, j)
		}
	}
	nf := len(free)

	type row struct {
		a     []float64
		b     float64
		slack float64 // +1 for <=, -1 for >=, 0 for =
	}
	var rows []row
	for _, c := range p.rows {
		a := make([]float64, nf)
		b := c.rhs
		for _, t := range c.expr {
			b -= t.Coef * lb[t.Var]
			if k := col[t.Var]; k >= 0 {
				a[k] += t.Coef
			}
		}
		if allZero(a) {
			tol := feasTol * math.Max(1, math.Abs(c.rhs))
			switch {
			case c.sense == LessEq && b < -tol,
				c.sense == GreaterEq && b > tol,
				c.sense == Equal && math.Abs(b) > tol:
				return 0, nil, errInfeasible
			}
			continue
		}
		r := row{a: a, b: b}
		switch c.sense {
		case LessEq:
			r.slack = 1
		case GreaterEq:
			r.slack = -1
		}
		rows = append(rows, r)
	}

	implied := make([]float64, nf)
	for k := range implied {
		implied[k] = math.Inf(1)
	}
	for _, r := range rows {
		if r.slack != 0 || r.b < 0 || !nonNegative(r.a) {
			continue
		}
		for k, v := range r.a {
			if v > 0 {
				implied[k] = math.Min(implied[k], r.b/v)
			}
		}
	}
	for k, j := range free {
		span := ub[j] - lb[j]
		if math.IsInf(span, 1) || implied[k] <= span+feasTol {
			continue
		}
		a := make([]float64, nf)
		a[k] = 1
		rows = append(rows, row{a: a, b: span, slack: 1})
	}

	// Columns that appear in no row sit at their lower bound unless that is unbounded.
	used := make([]bool, nf)
	for _, r := range rows {
		for k, v := range r.a {
			if v != 0 {
				used[k] = true
			}
		}
	}
	lpCol := make([]int, nf)
	var cols int
	for k, j := range free {
		lpCol[k] = -1
		if used[k] {
			lpCol[k] = cols
			cols++
		} else if p.cost[j] < 0 {
			return 0, nil, errUnbounded
		}
	}
	if len(rows) == 0 {
		return shift, x, nil
	}

	slacks := 0
	for _, r := range rows {
		if r.slack != 0 {
			slacks++
		}
	}
	width := cols + slacks
	A := mat.NewDense(len(rows), width, nil)
	b := make([]float64, len(rows))
	c := make([]float64, width)
	for k, j := range free {
		if lpCol[k] >= 0 {
			c[lpCol[k]] = p.cost[j]
		}
	}
	s := cols
	for i, r := range rows {
		sign := 1.0
		if r.b < 0 {
			sign = -1
		}
		for k, v := range r.a {
			if lpCol[k] >= 0 && v != 0 {
				A.Set(i, lpCol[k], sign*v)
			}
		}
		if r.slack != 0 {
			A.Set(i, s, sign*r.slack)
			s++
		}
		b[i] = sign * r.b
	}

	f, opt, err := lp.Simplex(c, A, b, simplexTol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return 0, nil, errInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return 0, nil, errUnbounded
	case err != nil:
		return 0, nil, fmt.Errorf("simplex: %w", err)
	}
	for k, j := range free {
		if lpCol[k] < 0 {
			continue
		}
		v := opt[lpCol[k]]
		span := ub[j] - lb[j]
		if v < 0 {
			v = 0
		} else if v > span {
			v = span
		}
		x[j] = lb[j] + v
	}
	return f + shift, x, nil
}

func allZero(a []float64) bool {
	for _, v := range a {
		if v != 0 {
			return false
		}
	}
	return true
}

func nonNegative(a []float64) bool {
	for _, v := range a {
		if v < 0 {
			return false
		}
	}
	return true
}
