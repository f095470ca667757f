// Package mip is the mixed-integer solving capability consumed by the facility location
// model: variables, linear constraints, a linear objective, time and gap limits, and a
// pluggable Solver that returns a status plus variable values.
package mip

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrModel reports a malformed model (unknown variable, non-finite coefficient, bad bounds).
var ErrModel = errors.New("mip: malformed model")

// Var is a handle to a model variable.
type Var int

// Term is coef * var.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression. Repeated variables are summed.
type Expr []Term

// Plus returns e + coef*v.
func (e Expr) Plus(v Var, coef float64) Expr { return append(e, Term{Var: v, Coef: coef}) }

type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

type variable struct {
	name    string
	lb, ub  float64
	integer bool
}

type constraint struct {
	expr  Expr
	sense Sense
	rhs   float64
}

// Model is a mixed-integer linear program under construction. It is not safe for
// concurrent use; every solve owns its own Model.
type Model struct {
	vars      []variable
	cons      []constraint
	obj       Expr
	minimize  bool
	timeLimit time.Duration
	gapLimit  float64
	start     map[Var]float64
}

// NewModel returns an empty minimization model with no limits.
func NewModel() *Model { return &Model{minimize: true} }

// AddBinary adds a {0,1} variable.
func (m *Model) AddBinary(name string) Var {
	m.vars = append(m.vars, variable{name: name, lb: 0, ub: 1, integer: true})
	return Var(len(m.vars) - 1)
}

// AddContinuous adds a variable in [lb, ub]. ub may be +Inf; lb must be finite.
func (m *Model) AddContinuous(name string, lb, ub float64) (Var, error) {
	if math.IsNaN(lb) || math.IsInf(lb, 0) || math.IsNaN(ub) || ub < lb {
		return -1, fmt.Errorf("%w: bounds [%v, %v] for %q", ErrModel, lb, ub, name)
	}
	m.vars = append(m.vars, variable{name: name, lb: lb, ub: ub})
	return Var(len(m.vars) - 1), nil
}

// AddConstraint adds expr (sense) rhs.
func (m *Model) AddConstraint(expr Expr, sense Sense, rhs float64) error {
	if sense < LessEq || sense > Equal {
		return fmt.Errorf("%w: unknown sense %v", ErrModel, sense)
	}
	if !isFinite(rhs) {
		return fmt.Errorf("%w: rhs %v", ErrModel, rhs)
	}
	if err := m.check(expr); err != nil {
		return err
	}
	m.cons = append(m.cons, constraint{expr: append(Expr(nil), expr...), sense: sense, rhs: rhs})
	return nil
}

// SetObjective replaces the objective.
func (m *Model) SetObjective(expr Expr, minimize bool) error {
	if err := m.check(expr); err != nil {
		return err
	}
	m.obj = append(Expr(nil), expr...)
	m.minimize = minimize
	return nil
}

// SetTimeLimit bounds wall-clock solve time. Zero or negative means no limit.
func (m *Model) SetTimeLimit(d time.Duration) { m.timeLimit = d }

// SetGapLimit sets the relative optimality gap at which the search stops early.
func (m *Model) SetGapLimit(g float64) {
	if g < 0 || math.IsNaN(g) {
		g = 0
	}
	m.gapLimit = g
}

// SetStart provides a warm-start assignment. Variables left out are taken as their lower
// bound. An infeasible start is ignored.
func (m *Model) SetStart(values map[Var]float64) {
	m.start = make(map[Var]float64, len(values))
	for v, x := range values {
		m.start[v] = x
	}
}

// NumVars reports the number of variables.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints reports the number of constraints.
func (m *Model) NumConstraints() int { return len(m.cons) }

// Name returns the name a variable was created with.
func (m *Model) Name(v Var) string {
	if int(v) < 0 || int(v) >= len(m.vars) {
		return ""
	}
	return m.vars[v].name
}

// Solve runs the default branch-and-bound backend.
func (m *Model) Solve() Result { return BranchAndBound{}.Solve(m) }

func (m *Model) check(expr Expr) error {
	for _, t := range expr {
		if int(t.Var) < 0 || int(t.Var) >= len(m.vars) {
			return fmt.Errorf("%w: unknown variable %d", ErrModel, t.Var)
		}
		if !isFinite(t.Coef) {
			return fmt.Errorf("%w: coefficient %v on %q", ErrModel, t.Coef, m.vars[t.Var].name)
		}
	}
	return nil
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Solver is a mixed-integer backend.
type Solver interface {
	Solve(m *Model) Result
}
