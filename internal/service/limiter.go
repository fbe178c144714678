package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyJobs is returned when no job slot frees up within the wait timeout.
var ErrTooManyJobs = errors.New("too many concurrent import jobs")

// JobLimiter bounds the number of jobs processed at once across the process.
type JobLimiter struct {
	sem  *semaphore.Weighted
	wait time.Duration
}

// NewJobLimiter creates a limiter with max slots. A zero wait fails immediately when full.
func NewJobLimiter(max int64, wait time.Duration) *JobLimiter {
	if max <= 0 {
		max = 1
	}
	return &JobLimiter{sem: semaphore.NewWeighted(max), wait: wait}
}

// Acquire takes a slot, waiting at most the configured timeout.
// Returns:
//   - error: ErrTooManyJobs when the wait expires, or ctx.Err() if ctx itself ends first.
func (l *JobLimiter) Acquire(ctx context.Context) error {
	if l.wait <= 0 {
		if l.sem.TryAcquire(1) {
			return nil
		}
		return ErrTooManyJobs
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyJobs
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (l *JobLimiter) Release() {
	l.sem.Release(1)
}
