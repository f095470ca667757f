// Package cache is the write-through cost matrix cache: a scenario's matrix is computed at
// most once and reused until its record is deleted or overwritten.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cflp/internal/costmatrix"
	"cflp/internal/metrics"
	"cflp/internal/model"
	"cflp/internal/store"
)

// Builder computes a matrix from scratch.
type Builder interface {
	Build(demand []model.DemandPoint, facilities []model.Facility) (*costmatrix.Matrix, error)
}

// Outcome tells how LoadOrBuild produced its matrix.
type Outcome string

const (
	Hit     Outcome = "hit"
	Miss    Outcome = "miss"    // no record
	Rebuild Outcome = "rebuild" // record empty, unreadable or failed to load
)

// Cache fronts a Store. With a Locker the lookup-compute-write sequence is exclusive per
// scenario; without one, concurrent callers on the same key may both compute.
type Cache struct {
	Store   store.Store
	Builder Builder
	Locker  store.Locker
	Logger  *zerolog.Logger
}

// Result carries the matrix plus how it was obtained. PersistErr is set when a freshly
// computed matrix could not be written back; the matrix is still valid.
type Result struct {
	Matrix     *costmatrix.Matrix
	Outcome    Outcome
	PersistErr error
}

func (c *Cache) logger() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return &log.Logger
}

// LoadOrBuild returns the persisted matrix for scenario, or computes and persists it when
// the record is absent, empty or unparsable. Only builder and lock errors are returned.
func (c *Cache) LoadOrBuild(ctx context.Context, scenario string, demand []model.DemandPoint, facilities []model.Facility) (Result, error) {
	m, outcome := c.lookup(ctx, scenario)
	if outcome != Hit && c.Locker != nil {
		release, err := c.Locker.Acquire(ctx, scenario)
		if err != nil {
			return Result{}, fmt.Errorf("lock scenario %s: %w", scenario, err)
		}
		defer release()
		// another holder may have written the record while we waited
		if again, o := c.lookup(ctx, scenario); o == Hit {
			m, outcome = again, o
		}
	}
	metrics.CostMatrixCache.WithLabelValues(string(outcome)).Inc()
	if outcome == Hit {
		c.logger().Debug().Str("scenario", scenario).Msg("cost matrix cache hit")
		return Result{Matrix: m, Outcome: Hit}, nil
	}
	res, err := c.build(ctx, scenario, demand, facilities)
	res.Outcome = outcome
	return res, err
}

func (c *Cache) lookup(ctx context.Context, scenario string) (*costmatrix.Matrix, Outcome) {
	lg := c.logger()
	m, err := c.Store.LoadCostMatrix(ctx, scenario)
	switch {
	case err == nil && !m.Empty():
		return m, Hit
	case errors.Is(err, store.ErrNotFound):
		lg.Info().Str("scenario", scenario).Msg("no cached cost matrix, computing")
		return nil, Miss
	case err == nil:
		err = errors.New("empty record")
	}
	metrics.Degradations.WithLabelValues(metrics.DegradeCacheRead).Inc()
	lg.Warn().Err(err).Str("scenario", scenario).Str("degradation", metrics.DegradeCacheRead).Msg("cached cost matrix unusable, recomputing")
	return nil, Rebuild
}

func (c *Cache) build(ctx context.Context, scenario string, demand []model.DemandPoint, facilities []model.Facility) (Result, error) {
	m, err := c.Builder.Build(demand, facilities)
	if err != nil {
		return Result{}, err
	}
	res := Result{Matrix: m}
	if m.Empty() {
		return res, nil
	}
	if err := c.Store.SaveCostMatrix(ctx, scenario, m); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save_cost_matrix").Inc()
		c.logger().Warn().Err(err).Str("scenario", scenario).Msg("could not persist cost matrix")
		res.PersistErr = err
	}
	return res, nil
}

// Invalidate drops the persisted matrix so the next LoadOrBuild recomputes it.
func (c *Cache) Invalidate(ctx context.Context, scenario string) error {
	err := c.Store.DeleteCostMatrix(ctx, scenario)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
