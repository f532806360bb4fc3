package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Pool runs trials across a fixed-size pool of goroutines. The first
// worker error cancels the shared context so sibling workers abort
// instead of leaving the coordinator waiting.
type Pool struct {
	workers int
}

// NewPool creates a pool dispatcher with the given worker count.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Dispatch fans the trials out over the worker pool and gathers one
// result per trial.
func (p *Pool) Dispatch(ctx context.Context, trials []Trial, run TrialFunc) ([]Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	semaphore := make(chan struct{}, p.workers)
	results := make([]Result, len(trials))
	errs := make([]error, len(trials))
	var wg sync.WaitGroup

	for i, trial := range trials {
		wg.Add(1)
		go func(idx int, tr Trial) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			result, err := run(ctx, tr)
			if err != nil {
				errs[idx] = err
				slog.Error("Trial failed, aborting siblings", "trial", tr.Index, "error", err)
				cancel()
				return
			}
			results[idx] = result
		}(i, trial)
	}

	wg.Wait()

	// Prefer the root-cause error over the cancellations it triggered.
	var firstErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if firstErr == nil || firstErr == context.Canceled {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, fmt.Errorf("trial batch failed: %w", firstErr)
	}
	return results, nil
}
