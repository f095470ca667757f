package mip

import (
	"fmt"
	"time"
)

// Status is the terminal state of a solve.
type Status int

const (
	NotSolved Status = iota
	Optimal
	GapLimit  // stopped with an incumbent inside the gap limit
	TimeLimit // stopped by the wall-clock limit, with or without an incumbent
	Infeasible
	Unbounded
	Error
)

var statusNames = [...]string{"NotSolved", "Optimal", "GapLimit", "TimeLimit", "Infeasible", "Unbounded", "Error"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusNames {
		if n == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Result is what a Solver reports after termination.
type Result struct {
	Status    Status
	Objective float64 // incumbent objective, in the model's sense
	Bound     float64 // best proven bound, in the model's sense
	Gap       float64
	Nodes     int
	Elapsed   time.Duration
	Err       error // set with Status Error

	values []float64
}

// HasIncumbent reports whether variable values are available.
func (r Result) HasIncumbent() bool { return r.values != nil }

// Accepted reports whether the result is a usable terminal state: proven optimal, or
// stopped by the gap or time limit while holding an incumbent.
func (r Result) Accepted() bool {
	switch r.Status {
	case Optimal, GapLimit, TimeLimit:
		return r.HasIncumbent()
	}
	return false
}

// Value returns the incumbent value of v, or 0 without an incumbent.
func (r Result) Value(v Var) float64 {
	if int(v) < 0 || int(v) >= len(r.values) {
		return 0
	}
	return r.values[v]
}

// WithValues builds a Result carrying an incumbent; for alternative backends and tests.
func WithValues(status Status, objective float64, values []float64) Result {
	return Result{Status: status, Objective: objective, Bound: objective, values: append([]float64(nil), values...)}
}
