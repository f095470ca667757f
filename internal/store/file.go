package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"cflp/internal/costmatrix"
	"cflp/internal/model"
)

// File keeps one JSON document per record kind and scenario in a directory:
// cost_matrix_<scenario>.json, cflp_assignments_<scenario>.json and
// solve_runs_<scenario>.json. Writes go to a temporary file that is renamed into place,
// so readers never observe a partial document.
type File struct {
	dir string
	mu  sync.Mutex // serializes solve-run read-modify-write
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the data directory.
func (f *File) Dir() string { return f.dir }

func (f *File) matrixPath(scenario string) (string, error) {
	return f.path("cost_matrix_", scenario)
}

func (f *File) assignmentPath(scenario string) (string, error) {
	return f.path("cflp_assignments_", scenario)
}

func (f *File) runsPath(scenario string) (string, error) {
	return f.path("solve_runs_", scenario)
}

// path names the record file of scenario. Keys must be normalized scenario keys and the
// result must stay a direct child of the data directory.
func (f *File) path(prefix, scenario string) (string, error) {
	if !model.ValidScenarioKey(scenario) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, scenario)
	}
	name := prefix + scenario + ".json"
	p := filepath.Join(f.dir, name)
	if filepath.Base(p) != name || filepath.Dir(p) != filepath.Clean(f.dir) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, scenario)
	}
	return p, nil
}

func (f *File) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (f *File) write(path string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}

func (f *File) LoadCostMatrix(ctx context.Context, scenario string) (*costmatrix.Matrix, error) {
	path, err := f.matrixPath(scenario)
	if err != nil {
		return nil, err
	}
	data, err := f.read(path)
	if err != nil {
		return nil, err
	}
	return decodeMatrix(data)
}

func (f *File) SaveCostMatrix(ctx context.Context, scenario string, m *costmatrix.Matrix) error {
	path, err := f.matrixPath(scenario)
	if err != nil {
		return err
	}
	data, err := encodeMatrix(m)
	if err != nil {
		return err
	}
	return f.write(path, data)
}

func (f *File) DeleteCostMatrix(ctx context.Context, scenario string) error {
	path, err := f.matrixPath(scenario)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (f *File) SaveAssignment(ctx context.Context, scenario string, a model.Assignment) error {
	path, err := f.assignmentPath(scenario)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return f.write(path, data)
}

func (f *File) LoadAssignment(ctx context.Context, scenario string) (model.Assignment, error) {
	path, err := f.assignmentPath(scenario)
	if err != nil {
		return nil, err
	}
	data, err := f.read(path)
	if err != nil {
		return nil, err
	}
	return decodeAssignment(data)
}

func (f *File) SaveSolveRun(ctx context.Context, run SolveRun) error {
	path, err := f.runsPath(run.Scenario)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	runs, err := f.loadRuns(path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	runs = append(runs, run)
	if len(runs) > 500 {
		runs = runs[len(runs)-500:]
	}
	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return err
	}
	return f.write(path, data)
}

func (f *File) ListSolveRuns(ctx context.Context, scenario string, limit int) ([]SolveRun, error) {
	path, err := f.runsPath(scenario)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	runs, err := f.loadRuns(path)
	f.mu.Unlock()
	if errors.Is(err, ErrNotFound) {
		return []SolveRun{}, nil
	}
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if l := runLimit(limit); len(runs) > l {
		runs = runs[:l]
	}
	return runs, nil
}

func (f *File) loadRuns(path string) ([]SolveRun, error) {
	data, err := f.read(path)
	if err != nil {
		return nil, err
	}
	var runs []SolveRun
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return runs, nil
}

// Ping checks that the data directory is still usable.
func (f *File) Ping(ctx context.Context) error {
	st, err := os.Stat(f.dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", f.dir)
	}
	return nil
}
