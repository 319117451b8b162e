package loadgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner fans the workload out over a pool of independent workers. Any
// invariant violation or server fault observed by any worker fails the run.
type Runner struct {
	Client   *Client
	Accounts []int
	Workers  int
	Duration time.Duration
	Seed     int64
	Logger   *slog.Logger
}

// Run resets the service, drives the workload until the duration elapses or
// the context is cancelled, resets again, and returns the merged stats.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	if r.Workers < 1 {
		r.Workers = 1
	}
	if len(r.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts to exercise")
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}

	if err := r.Client.Reset(ctx); err != nil {
		return nil, fmt.Errorf("initial reset: %w", err)
	}

	runCtx := ctx
	if r.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Duration)
		defer cancel()
	}

	workers := make([]*worker, r.Workers)
	g, gctx := errgroup.WithContext(runCtx)
	for i := range workers {
		w := newWorker(i, r.Client, r.Accounts, r.Seed+int64(i))
		workers[i] = w
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				if err := w.step(gctx); err != nil {
					if gctx.Err() != nil {
						// Request cut short by the deadline, not a failure.
						return nil
					}
					return fmt.Errorf("worker %d: %w", w.id, err)
				}
			}
		})
	}
	err := g.Wait()

	// Teardown reset on a fresh context so the next window starts clean even
	// when the run context is already done.
	resetCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if rerr := r.Client.Reset(resetCtx); rerr != nil {
		r.Logger.Warn("teardown reset failed", "error", rerr)
		if err == nil {
			err = rerr
		}
	}

	total := &Stats{}
	for _, w := range workers {
		total.merge(w.stats)
	}
	return total, err
}
