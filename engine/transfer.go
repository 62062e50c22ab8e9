package engine

import (
	"context"
	"errors"
	"fmt"
)

// DefaultWorkers is the worker count used when TransferOptions.Workers is
// not positive.
const DefaultWorkers = 8

// TransferOptions tunes a tree transfer.
type TransferOptions struct {
	// Workers is the number of concurrent job handlers.
	Workers int

	// Tracker journals every job when non-nil.
	Tracker *JobTracker
}

func (o TransferOptions) workers() int {
	if o.Workers <= 0 {
		return DefaultWorkers
	}
	return o.Workers
}

// Producer feeds jobs into the channel and returns when it has no more. It
// must give up when ctx is done. The channel is closed by Transfer.
type Producer func(ctx context.Context, jobs JobChannel) error

// WalkProducer returns a Producer that walks src on lister and emits jobs
// targeting dst.
func WalkProducer(lister Lister, op, src, dst string) Producer {
	return func(ctx context.Context, jobs JobChannel) error {
		return NewWalker(lister, jobs, op).Walk(ctx, src, dst)
	}
}

// Transfer runs produce and a worker pool executing handler until every
// job is processed. The first failing job cancels the rest. The returned
// error joins every job failure together with the producer's error, if any.
func Transfer(ctx context.Context, opts TransferOptions, produce Producer, handler JobHandler) error {
	pool := NewWorkerPool(ctx, opts.workers(), func(ctx context.Context, job TransferJob) error {
		if err := opts.Tracker.Run(ctx, job, handler); err != nil {
			return fmt.Errorf("%s %s: %w", job.Op, job.SourcePath, err)
		}
		return nil
	})

	jobs := make(JobChannel, pool.Workers()*2)
	pool.Start(jobs)

	produceErr := produce(pool.Context(), jobs)
	close(jobs)
	jobErr := pool.Wait()

	// A producer stopped by a failing job only adds noise.
	if produceErr != nil && jobErr != nil && errors.Is(produceErr, context.Canceled) {
		produceErr = nil
	}
	if jobErr == nil && produceErr == nil {
		// Jobs still queued when the caller's context ended never ran.
		return ctx.Err()
	}
	return errors.Join(jobErr, produceErr)
}
