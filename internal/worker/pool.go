// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package worker runs a fixed-size pool of goroutines that each pull one
// file path at a time off a shared queue and hand it to an injected
// processing function, keeping the pipeline strictly sequential within a
// job while many jobs proceed in parallel.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/secure-doc-ai/pipeline/internal/document"
	"github.com/secure-doc-ai/pipeline/internal/observability"
	"github.com/secure-doc-ai/pipeline/internal/resilience"
)

// Job is a single file submitted for processing.
type Job struct {
	JobID    string
	FilePath string
}

// Result is what a completed (or failed) job produces.
type Result struct {
	JobID    string
	FilePath string
	Outcome  document.ProcessResult
	Error    error
	Duration time.Duration
}

// ProcessFunc runs the full validate -> extract -> detect -> resolve ->
// redact -> sign -> audit pipeline for one job. It is supplied by the
// caller (the pipeline package) so the pool stays agnostic of pipeline
// internals, mirroring how the teacher's pool depended only on an
// injected file router rather than owning preprocessing logic itself.
type ProcessFunc func(ctx context.Context, job Job) (document.ProcessResult, error)

// Pool manages parallel job processing across a fixed worker count.
type Pool struct {
	size         int
	jobs         chan Job
	results      chan Result
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	observer     *observability.StandardObserver
	retryManager *resilience.RetryManager
	process      ProcessFunc
	jobTimeout   time.Duration
}

// New builds a Pool with size workers. process is invoked once per job;
// jobTimeout bounds how long any single job's pipeline run may take
// before it is canceled. A failed job is not retried: the retry
// configurations registered on retryManager are not used by runJob.
func New(size int, jobTimeout time.Duration, observer *observability.StandardObserver, process ProcessFunc) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	retryManager := resilience.NewRetryManager()
	retryManager.SetConfig("job_processing", resilience.DefaultRetryConfig())
	retryManager.SetConfig("external_service", resilience.ExternalServiceRetryConfig())

	return &Pool{
		size:         size,
		jobs:         make(chan Job, size*2),
		results:      make(chan Result, size*2),
		ctx:          ctx,
		cancel:       cancel,
		observer:     observer,
		retryManager: retryManager,
		process:      process,
		jobTimeout:   jobTimeout,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

// Stop waits for in-flight jobs to drain, then closes the results
// channel and releases the pool's context. Workers block while the
// results channel (buffered to twice the pool size) is full, so Results
// must be read concurrently for Stop to return when more results are
// pending than that buffer holds.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
	p.cancel()
}

// Submit enqueues a job, blocking only if the queue is full and the pool
// has not been stopped.
func (p *Pool) Submit(job Job) {
	select {
	case p.jobs <- job:
	case <-p.ctx.Done():
	}
}

// Results exposes the channel of completed job results.
func (p *Pool) Results() <-chan Result {
	return p.results
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		result := p.runJob(job, id)

		select {
		case p.results <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) runJob(job Job, workerID int) Result {
	start := time.Now()

	var finishTiming func(bool, map[string]interface{})
	if p.observer != nil {
		finishTiming = p.observer.StartTiming("worker_pool", "process_job", job.FilePath)
	}

	jobCtx, cancel := context.WithTimeout(p.ctx, p.jobTimeout)
	defer cancel()

	outcome, err := p.process(jobCtx, job)
	duration := time.Since(start)

	if err != nil && resilience.IsCircuitBreakerError(err) {
		err = resilience.NewTransientError("a dependency is temporarily unavailable", err)
	}

	if finishTiming != nil {
		finishTiming(err == nil, map[string]interface{}{
			"worker_id":   workerID,
			"duration_ms": duration.Milliseconds(),
			"had_error":   err != nil,
			"entities":    outcome.EntityCount,
		})
	}

	return Result{
		JobID:    job.JobID,
		FilePath: job.FilePath,
		Outcome:  outcome,
		Error:    err,
		Duration: duration,
	}
}
