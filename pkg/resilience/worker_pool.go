// Package resilience provides the small concurrency guards used across the
// pipeline: a bounded worker pool for fan-out work, a circuit breaker for
// flaky remote collaborators, and per-key mutexes.
package resilience

import (
	"context"
	"errors"
	"sync"
)

var ErrWorkerPoolClosed = errors.New("worker pool is closed")

// WorkerPool runs submitted jobs on a fixed number of goroutines with a
// bounded queue, so fan-out work (parallel blob wipes during a sweep) cannot
// spawn unbounded concurrency.
type WorkerPool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workers goroutines draining a queue of queueSize jobs.
// Non-positive arguments fall back to sane minimums.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &WorkerPool{jobs: make(chan func(), queueSize)}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}

	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Submit enqueues a job, blocking while the queue is full. It fails with
// ctx.Err() if the context ends first, and ErrWorkerPoolClosed after Close.
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	if job == nil {
		return nil
	}

	// The read lock is held across the send so Close cannot close the channel
	// under an in-flight Submit.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Close stops accepting jobs. Already-queued jobs still run.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

// Wait blocks until all workers have drained the queue after Close.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
