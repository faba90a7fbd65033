// Package pool runs independent jobs on a bounded number of goroutines.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/ptalign/pkg/errors"
)

// Job processes item i. Its error is recorded for i only; it never stops
// the other jobs.
type Job func(ctx context.Context, i int) error

// Pool is a fixed-size worker pool.
type Pool struct {
	workers  int
	progress func(done, total int)
}

// DefaultWorkers leaves two cores to the rest of the system.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-2)
}

// New creates a pool with the given number of workers. Zero or less selects
// DefaultWorkers.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Pool{workers: workers}
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// OnProgress registers fn to be called after every finished job. Calls may
// come from several goroutines.
func (p *Pool) OnProgress(fn func(done, total int)) *Pool {
	p.progress = fn
	return p
}

// Run executes job for every index in [0, n) and returns the per-index
// errors, nil where the job succeeded. A one-worker pool runs the jobs in
// order on the calling goroutine. Jobs not yet started when ctx is done are
// marked with the context error.
func (p *Pool) Run(ctx context.Context, n int, job Job) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	var done atomic.Int64
	finish := func(i int, err error) {
		errs[i] = err
		d := done.Add(1)
		if p.progress != nil {
			p.progress(int(d), n)
		}
	}

	if p.workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				errs[i] = errors.Wrap(err, errors.CodeContextCanceled, "job not started")
				continue
			}
			finish(i, safeCall(ctx, job, i))
		}
		return errs
	}

	// Job errors are kept per index, so the group itself never fails and
	// siblings are not canceled.
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		i := i
		if err := ctx.Err(); err != nil {
			errs[i] = errors.Wrap(err, errors.CodeContextCanceled, "job not started")
			continue
		}
		g.Go(func() error {
			finish(i, safeCall(ctx, job, i))
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func safeCall(ctx context.Context, job Job, i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.CodePanic, fmt.Sprintf("job panicked: %v", r)).
				WithContext("job", i)
		}
	}()
	return job(ctx, i)
}
