package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/portfoliolens/sheetload/internal/domain"
)

type staticLister []domain.ImportJob

func (l staticLister) ListPending(_ context.Context, limit int) ([]domain.ImportJob, error) {
	return l[:min(limit, len(l))], nil
}

type recordingRunner struct {
	mu      sync.Mutex
	ran     []string
	active  atomic.Int32
	peak    atomic.Int32
	release chan struct{}
}

func (r *recordingRunner) Process(_ context.Context, jobID string) (*ImportResult, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.ran = append(r.ran, jobID)
	r.mu.Unlock()
	if jobID == "claimed" {
		return nil, domain.ErrJobNotPending
	}
	return &ImportResult{JobID: jobID, Status: domain.JobStatusCompleted}, nil
}

func TestWorkerRunOnce(t *testing.T) {
	jobs := staticLister{{ID: "a"}, {ID: "claimed"}, {ID: "b"}}
	runner := &recordingRunner{}
	w := NewWorker(jobs, runner, NewJobLimiter(2, time.Second), testLogger(), WorkerConfig{BatchSize: 10})

	started, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if started != 3 || len(runner.ran) != 3 {
		t.Errorf("started %d, ran %v", started, runner.ran)
	}
	if runner.peak.Load() > 2 {
		t.Errorf("limiter exceeded: %d jobs ran at once", runner.peak.Load())
	}
}

func TestWorkerDefersWhenSlotsAreTaken(t *testing.T) {
	limiter := NewJobLimiter(1, 0)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	runner := &recordingRunner{}
	w := NewWorker(staticLister{{ID: "a"}}, runner, limiter, testLogger(), WorkerConfig{})

	started, err := w.RunOnce(context.Background())
	if err != nil || started != 0 {
		t.Errorf("RunOnce() = %d, %v; want 0, nil", started, err)
	}
	limiter.Release()
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &recordingRunner{}
	w := NewWorker(staticLister{}, runner, NewJobLimiter(1, time.Second), testLogger(), WorkerConfig{PollInterval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestJobLimiter(t *testing.T) {
	l := NewJobLimiter(1, 20*time.Millisecond)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Acquire(ctx); !errors.Is(err, ErrTooManyJobs) {
		t.Errorf("expected ErrTooManyJobs, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := l.Acquire(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	l.Release()
	if err := l.Acquire(ctx); err != nil {
		t.Errorf("slot should be free after Release, got %v", err)
	}
}
