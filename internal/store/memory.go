package store

import (
	"context"
	"encoding/json"
	"sync"

	"cflp/internal/costmatrix"
	"cflp/internal/model"
)

// Memory is a simple in-memory store used for tests and throwaway runs. Records are kept
// serialized so callers never share state with the store.
type Memory struct {
	mu       sync.Mutex
	matrices map[string][]byte     // scenario -> cost matrix JSON
	assigns  map[string][]byte     // scenario -> assignment JSON
	runs     map[string][]SolveRun // scenario -> runs, oldest first
}

func NewMemory() *Memory {
	return &Memory{
		matrices: map[string][]byte{},
		assigns:  map[string][]byte{},
		runs:     map[string][]SolveRun{},
	}
}

func (m *Memory) LoadCostMatrix(ctx context.Context, scenario string) (*costmatrix.Matrix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.matrices[scenario]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeMatrix(data)
}

func (m *Memory) SaveCostMatrix(ctx context.Context, scenario string, cm *costmatrix.Matrix) error {
	data, err := encodeMatrix(cm)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matrices[scenario] = data
	return nil
}

// PutRaw stores an arbitrary cost matrix record; used to simulate damaged caches.
func (m *Memory) PutRaw(scenario string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matrices[scenario] = append([]byte(nil), data...)
}

func (m *Memory) DeleteCostMatrix(ctx context.Context, scenario string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matrices[scenario]; !ok {
		return ErrNotFound
	}
	delete(m.matrices, scenario)
	return nil
}

func (m *Memory) SaveAssignment(ctx context.Context, scenario string, a model.Assignment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigns[scenario] = data
	return nil
}

func (m *Memory) LoadAssignment(ctx context.Context, scenario string) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.assigns[scenario]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeAssignment(data)
}

func (m *Memory) SaveSolveRun(ctx context.Context, run SolveRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.Scenario] = append(m.runs[run.Scenario], run)
	return nil
}

func (m *Memory) ListSolveRuns(ctx context.Context, scenario string, limit int) ([]SolveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.runs[scenario]
	limit = runLimit(limit)
	out := []SolveRun{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
