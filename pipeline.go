package kcomp

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type orderedJob[In any] struct {
	index int
	in    In
}

// runOrdered reads items from next until io.EOF, transforms them on
// workers goroutines and passes the results to consume in input order.
//
// At most window items are alive between next and consume: a permit is
// taken before an item is read and returned after it has been consumed.
// The first error cancels the remaining work and is returned.
func runOrdered[In, Out any](
	ctx context.Context,
	workers, window int,
	next func() (In, error),
	process func(ctx context.Context, index int, in In) (Out, error),
	consume func(index int, out Out) error,
) error {
	group, groupCtx := errgroup.WithContext(ctx)
	permits := semaphore.NewWeighted(int64(window))
	jobs := make(chan orderedJob[In])
	results := newSlotTable[Out](window)

	group.Go(func() error {
		defer close(jobs)
		for index := 0; ; index++ {
			if err := permits.Acquire(groupCtx, 1); err != nil {
				return err
			}
			in, err := next()
			if err == io.EOF {
				permits.Release(1)
				results.close(index)
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case jobs <- orderedJob[In]{index: index, in: in}:
			case <-groupCtx.Done():
				return context.Cause(groupCtx)
			}
		}
	})

	for range workers {
		group.Go(func() error {
			for job := range jobs {
				out, err := process(groupCtx, job.index, job.in)
				if err != nil {
					return err
				}
				results.put(job.index, out)
			}
			return nil
		})
	}

	group.Go(func() error {
		for index := 0; ; index++ {
			out, ok, err := results.take(groupCtx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := consume(index, out); err != nil {
				return err
			}
			permits.Release(1)
		}
	})

	return group.Wait()
}
