// Package engine runs one facility location solve end to end: cost matrix, model,
// persistence, history and notifications.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cflp/internal/cache"
	"cflp/internal/config"
	"cflp/internal/costmatrix"
	"cflp/internal/metrics"
	"cflp/internal/mip"
	"cflp/internal/model"
	"cflp/internal/opt"
	"cflp/internal/result"
	"cflp/internal/store"
)

// EventSolveCompleted is published after every finished solve, accepted or not.
const EventSolveCompleted = "solve.completed"

// Scenario is one solve request. Capacities and Demands are optional; missing entries
// fall back to the entity's own value and then to the configured uniform default.
type Scenario struct {
	Key        string
	Demand     []model.DemandPoint
	Facilities []model.Facility
	Capacities map[string]int
	Demands    map[string]int
	// Options replaces the configured solver options when set.
	Options *config.Solver
}

// Result is the outcome of Engine.Solve.
type Result struct {
	RunID        string
	Scenario     string
	Solution     opt.Solution
	Matrix       *costmatrix.Matrix
	Capacities   map[string]int
	Demands      map[string]int
	CacheOutcome cache.Outcome
	Persisted    bool
	// PersistErr joins every non-fatal write failure of the solve.
	PersistErr error
	// Elapsed covers the whole solve including the cost matrix.
	Elapsed time.Duration
}

// Report summarizes the result.
func (r Result) Report() result.Report {
	return result.NewReport(r.Scenario, r.Solution, r.Capacities, len(r.Demands))
}

// Engine sequences cost matrix retrieval, optimization and result persistence.
type Engine struct {
	Store     store.Store // solve history
	Cache     *cache.Cache
	Extractor result.Extractor
	Config    config.Config
	Backend   mip.Solver
	Notifier  Notifier
	Logger    *zerolog.Logger
}

// New wires an engine over one store.
func New(cfg config.Config, st store.Store, locker store.Locker) *Engine {
	return &Engine{
		Store:     st,
		Cache:     &cache.Cache{Store: st, Builder: costmatrix.Builder{}, Locker: locker},
		Extractor: result.Extractor{Store: st},
		Config:    cfg,
	}
}

func (e *Engine) logger() *zerolog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return &log.Logger
}

// Solve runs sc. Input errors (validation, invalid options, builder failures) are
// returned; persistence failures are not and show up in Result.PersistErr instead.
func (e *Engine) Solve(ctx context.Context, sc Scenario) (Result, error) {
	start := time.Now()
	lg := e.logger()
	key := sc.Key
	if key == "" {
		key = model.ScenarioKey(e.Config.City)
	}
	if key == "" {
		return Result{}, fmt.Errorf("%w: empty scenario key", opt.ErrParams)
	}
	opts := e.Config.SolverFor(key)
	if sc.Options != nil {
		opts = *sc.Options
	}
	caps := capacities(sc, opts.FacilityCapacity)
	demands := quantities(sc, opts.DemandQuantity)

	lg.Info().Str("scenario", key).Int("demand", len(sc.Demand)).Int("facilities", len(sc.Facilities)).Msg("solve started")

	cres, err := e.Cache.LoadOrBuild(ctx, key, sc.Demand, sc.Facilities)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			lg.Error().Err(err).Str("scenario", key).Msg("invalid scenario")
		}
		return Result{}, err
	}
	res := Result{
		RunID:        uuid.NewString(),
		Scenario:     key,
		Matrix:       cres.Matrix,
		Capacities:   caps,
		Demands:      demands,
		CacheOutcome: cres.Outcome,
	}
	var persistErrs []error
	if cres.PersistErr != nil {
		persistErrs = append(persistErrs, cres.PersistErr)
	}

	params := opt.Params{
		FixedCost:  opts.FixCost,
		FixedCosts: fixedCosts(sc.Facilities),
		TimeLimit:  opts.TimeLimit,
		GapLimit:   opts.GapLimit,
		Backend:    e.Backend,

		MaxExactPairs: e.Config.MaxExactPairs,
	}
	sol, err := opt.Solve(cres.Matrix, caps, demands, params)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			lg.Error().Err(err).Str("scenario", key).Msg("invalid scenario")
		}
		return Result{}, err
	}
	if err := result.Validate(sol, cres.Matrix, caps, demands); err != nil {
		return Result{}, fmt.Errorf("solver returned an inconsistent solution: %w", err)
	}
	res.Solution = sol

	res.Persisted, err = e.Extractor.Persist(ctx, key, sol)
	if err != nil {
		persistErrs = append(persistErrs, err)
	}
	res.Elapsed = time.Since(start)

	run := store.SolveRun{
		ID:             res.RunID,
		Scenario:       key,
		Status:         sol.Status.String(),
		Objective:      sol.Objective,
		Gap:            sol.Gap,
		OpenFacilities: len(sol.OpenFacilities),
		Assigned:       len(sol.Assignments),
		Demand:         len(demands),
		SolvingTime:    sol.SolvingTime,
		StartedAt:      start.UTC(),
	}
	if len(persistErrs) > 0 {
		run.PersistError = errors.Join(persistErrs...).Error()
	}
	if e.Store != nil {
		if err := e.Store.SaveSolveRun(ctx, run); err != nil {
			metrics.PersistenceFailures.WithLabelValues("save_solve_run").Inc()
			lg.Warn().Err(err).Str("scenario", key).Msg("could not record solve run")
			persistErrs = append(persistErrs, err)
		}
	}
	res.PersistErr = errors.Join(persistErrs...)

	opt.RecordMetrics(key, backendName(e.Backend), opt.MetricsOf(sol))
	metrics.Solves.WithLabelValues(sol.Status.String()).Inc()
	metrics.SolveDuration.Observe(sol.SolvingTime.Seconds())
	if sol.Accepted() {
		metrics.OpenFacilities.Set(float64(len(sol.OpenFacilities)))
	}

	if e.Notifier != nil {
		e.Notifier.Notify(ctx, newEvent(res))
	}

	lg.Info().
		Str("scenario", key).
		Str("run", res.RunID).
		Str("status", sol.Status.String()).
		Float64("objective", sol.Objective).
		Float64("gap", sol.Gap).
		Int("open", len(sol.OpenFacilities)).
		Int("assigned", len(sol.Assignments)).
		Str("cache", string(cres.Outcome)).
		Dur("solving", sol.SolvingTime).
		Dur("elapsed", res.Elapsed).
		Msg("solve finished")
	return res, nil
}

// Invalidate drops the cached cost matrix of scenario.
func (e *Engine) Invalidate(ctx context.Context, scenario string) error {
	return e.Cache.Invalidate(ctx, scenario)
}

func capacities(sc Scenario, def int) map[string]int {
	out := model.Capacities(sc.Facilities, def)
	for id, c := range sc.Capacities {
		out[id] = c
	}
	return out
}

func quantities(sc Scenario, def int) map[string]int {
	out := model.Quantities(sc.Demand, def)
	for id, q := range sc.Demands {
		out[id] = q
	}
	return out
}

func fixedCosts(fs []model.Facility) map[string]float64 {
	var out map[string]float64
	for _, f := range fs {
		if f.FixedCost == nil {
			continue
		}
		if out == nil {
			out = map[string]float64{}
		}
		out[f.ID] = *f.FixedCost
	}
	return out
}

func backendName(s mip.Solver) string {
	if s == nil {
		return "branch-and-bound"
	}
	return fmt.Sprintf("%T", s)
}
