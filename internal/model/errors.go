package model

import (
	"errors"
	"fmt"
)

// ErrValidation matches every ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

type ValidationKind string

const (
	MissingID       ValidationKind = "missing identifier"
	DuplicateID     ValidationKind = "duplicate identifier"
	MissingGeometry ValidationKind = "missing geometry"
	MissingDemand   ValidationKind = "missing demand quantity"
	MissingCapacity ValidationKind = "missing capacity"
)

// ValidationError reports input that makes a solve impossible. It always names the
// offending entity so the caller can fix the data.
type ValidationError struct {
	Kind   ValidationKind
	Entity string // "demand point" or "facility"
	ID     string
	Index  int
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s at index %d", e.Kind, e.Entity, e.Index)
	}
	return fmt.Sprintf("%s for %s %q", e.Kind, e.Entity, e.ID)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
