// Package result checks solver output against the input it was computed from, persists
// accepted assignments and summarizes solutions for people.
package result

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cflp/internal/costmatrix"
	"cflp/internal/metrics"
	"cflp/internal/opt"
	"cflp/internal/store"
)

var ErrInvalidSolution = errors.New("invalid solution")

// Validate checks that every assignment references known ids and an open facility, that
// no facility exceeds its capacity and, for accepted solutions, that every demand point in
// the matrix is served. All violations are reported together.
func Validate(sol opt.Solution, m *costmatrix.Matrix, capacities, demands map[string]int) error {
	var errs []error
	known := map[string]bool{}
	for _, d := range m.DemandIDs() {
		known[d] = true
	}
	open := map[string]bool{}
	for _, f := range sol.OpenFacilities {
		if _, ok := capacities[f]; !ok {
			errs = append(errs, fmt.Errorf("open facility %q unknown", f))
		}
		open[f] = true
	}
	load := map[string]int{}
	for _, d := range sortedKeys(sol.Assignments) {
		f := sol.Assignments[d]
		if !known[d] {
			errs = append(errs, fmt.Errorf("assigned demand point %q not in cost matrix", d))
		}
		if _, ok := capacities[f]; !ok {
			errs = append(errs, fmt.Errorf("demand point %q assigned to unknown facility %q", d, f))
		} else if !open[f] {
			errs = append(errs, fmt.Errorf("demand point %q assigned to closed facility %q", d, f))
		}
		load[f] += demands[d]
	}
	for _, f := range sortedKeys(load) {
		if c, ok := capacities[f]; ok && load[f] > c {
			errs = append(errs, fmt.Errorf("facility %q serves %d over capacity %d", f, load[f], c))
		}
	}
	if sol.Accepted() {
		for _, d := range m.DemandIDs() {
			if _, ok := sol.Assignments[d]; !ok {
				errs = append(errs, fmt.Errorf("demand point %q unserved", d))
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSolution, errors.Join(errs...))
}

// Extractor persists accepted solutions.
type Extractor struct {
	Store  store.Store
	Logger *zerolog.Logger
}

// Persist writes the assignment of an accepted, non-empty solution under scenario. Other
// solutions are skipped. A write failure is logged and returned but does not affect the
// solution itself.
func (e Extractor) Persist(ctx context.Context, scenario string, sol opt.Solution) (bool, error) {
	if !sol.Accepted() {
		return false, nil
	}
	if err := e.Store.SaveAssignment(ctx, scenario, sol.Assignments); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save_assignment").Inc()
		lg := e.Logger
		if lg == nil {
			lg = &log.Logger
		}
		lg.Warn().Err(err).Str("scenario", scenario).Msg("could not persist assignment")
		return false, err
	}
	return true, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
