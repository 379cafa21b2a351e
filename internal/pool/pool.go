// Package pool runs independent work units with bounded concurrency.
//
// Results are always written by work-unit index, so the outcome of a batch
// does not depend on the pool size or on scheduling order.
package pool

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool executes n tasks, indexed 0..n-1. The first failing task aborts the
// batch and its error is returned.
type Pool interface {
	Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error
	Size() int
}

// Sequential runs tasks one after another on the calling goroutine.
type Sequential struct{}

func (Sequential) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (Sequential) Size() int { return 1 }

// Bounded runs at most size tasks at once.
type Bounded struct {
	size int
}

// New returns a bounded pool. size <= 0 selects runtime.NumCPU().
func New(size int) *Bounded {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Bounded{size: size}
}

func (b *Bounded) Size() int { return b.size }

func (b *Bounded) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	if b.size == 1 {
		return Sequential{}.Run(ctx, n, task)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.size)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return task(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Map applies fn to every input and returns the results in input order.
// A nil pool runs sequentially.
func Map[In, Out any](ctx context.Context, p Pool, inputs []In, fn func(ctx context.Context, in In) (Out, error)) ([]Out, error) {
	if p == nil {
		p = Sequential{}
	}
	out := make([]Out, len(inputs))
	err := p.Run(ctx, len(inputs), func(ctx context.Context, i int) error {
		v, err := fn(ctx, inputs[i])
		if err != nil {
			return fmt.Errorf("work unit %d: %w", i, err)
		}
		out[i] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
