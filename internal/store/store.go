package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cflp/internal/costmatrix"
	"cflp/internal/model"
)

// Store persists scenario-keyed cost matrices, assignments and solve history.
// A scenario key uniquely determines every record it owns.
type Store interface {
	// Cost matrix cache records
	LoadCostMatrix(ctx context.Context, scenario string) (*costmatrix.Matrix, error)
	SaveCostMatrix(ctx context.Context, scenario string, m *costmatrix.Matrix) error
	DeleteCostMatrix(ctx context.Context, scenario string) error

	// Solve results
	SaveAssignment(ctx context.Context, scenario string, a model.Assignment) error
	LoadAssignment(ctx context.Context, scenario string) (model.Assignment, error)

	// Solve history, newest first
	SaveSolveRun(ctx context.Context, run SolveRun) error
	ListSolveRuns(ctx context.Context, scenario string, limit int) ([]SolveRun, error)

	Ping(ctx context.Context) error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrCorrupt marks a record that exists but is empty or does not parse.
	ErrCorrupt = errors.New("corrupt record")
	// ErrInvalidKey rejects scenario keys that cannot name a record.
	ErrInvalidKey = errors.New("invalid scenario key")
)

// SolveRun is one line of solve history.
type SolveRun struct {
	ID             string        `json:"id"`
	Scenario       string        `json:"scenario"`
	Status         string        `json:"status"`
	Objective      float64       `json:"objective"`
	Gap            float64       `json:"gap"`
	OpenFacilities int           `json:"openFacilities"`
	Assigned       int           `json:"assigned"`
	Demand         int           `json:"demand"`
	SolvingTime    time.Duration `json:"solvingTime"`
	StartedAt      time.Time     `json:"startedAt"`
	PersistError   string        `json:"persistError,omitempty"`
}

const defaultRunLimit = 50

func runLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultRunLimit
	}
	return limit
}

func decodeMatrix(data []byte) (*costmatrix.Matrix, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty cost matrix", ErrCorrupt)
	}
	m, err := costmatrix.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return m, nil
}

func encodeMatrix(m *costmatrix.Matrix) ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil cost matrix")
	}
	return json.Marshal(m)
}

func decodeAssignment(data []byte) (model.Assignment, error) {
	var a model.Assignment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if a == nil {
		a = model.Assignment{}
	}
	return a, nil
}
