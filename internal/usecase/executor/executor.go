// Package executor runs units of work with bounded concurrency and per-unit results.
package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Unit is one piece of work.
type Unit[T any] func(ctx context.Context) (T, error)

// Result is the outcome of one Unit, in submission order.
type Result[T any] struct {
	Value T
	Err   error
}

// Run executes units with at most limit running at once. Queued units start in submission
// order as slots free up. A failing or panicking unit never affects its siblings.
//
// Once ctx is done, units that have not started yet are skipped and report ctx.Err();
// units already running are left to finish. Run is safe to nest.
func Run[T any](ctx context.Context, limit int, units []Unit[T]) []Result[T] {
	results := make([]Result[T], len(units))
	if len(units) == 0 {
		return results
	}
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		// Go blocks until a slot is free, which preserves submission order.
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i] = runUnit(ctx, unit)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Values splits results into values and errors, keeping positions.
func Values[T any](results []Result[T]) ([]T, []error) {
	values := make([]T, len(results))
	errs := make([]error, len(results))
	for i, r := range results {
		values[i] = r.Value
		errs[i] = r.Err
	}
	return values, errs
}

func runUnit[T any](ctx context.Context, unit Unit[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: fmt.Errorf("executor: unit panicked: %v", r)}
		}
	}()
	v, err := unit(ctx)
	return Result[T]{Value: v, Err: err}
}
