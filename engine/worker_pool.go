package engine

import (
	"context"
	"errors"
	"sync"
)

// JobHandler is a function that processes a TransferJob.
type JobHandler func(context.Context, TransferJob) error

// WorkerPool runs a fixed number of workers over a JobChannel. The first
// handler error cancels the pool's context so the remaining workers and the
// producer stop early; every error is kept for Wait.
type WorkerPool struct {
	handler JobHandler
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewWorkerPool creates a pool of workers handlers. A non-positive count
// means one worker.
func NewWorkerPool(ctx context.Context, workers int, handler JobHandler) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		handler: handler,
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Context is cancelled once a job fails or the pool is stopped. Producers
// feeding the pool should select on it.
func (p *WorkerPool) Context() context.Context {
	return p.ctx
}

// Workers returns the number of workers Start launches.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Start launches the workers. They exit when jobs is closed and drained or
// when the pool's context is done.
func (p *WorkerPool) Start(jobs JobChannel) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(jobs)
	}
}

func (p *WorkerPool) work(jobs JobChannel) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			// cancellation wins over a job that was already queued
			if p.ctx.Err() != nil {
				return
			}
			if err := p.handler(p.ctx, job); err != nil {
				p.fail(err)
			}
		}
	}
}

func (p *WorkerPool) fail(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
	p.cancel()
}

// Wait blocks until every worker has exited and returns the joined handler
// errors.
func (p *WorkerPool) Wait() error {
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

// Stop cancels running jobs and waits for the workers to exit.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
}
