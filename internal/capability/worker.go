package capability

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Worker runs middleware jobs on background goroutines.
//
// Jobs may launch further jobs, which happens whenever a resolution
// produces a follow-up request the same middleware answers. Wait returns
// once no job is running and none was launched meanwhile.
//
// Thread-safety: all methods are safe for concurrent use.
type Worker struct {
	ctx    context.Context
	logger *slog.Logger

	mu       sync.Mutex
	group    *errgroup.Group
	launched int
}

// NewWorker creates a worker whose jobs receive ctx.
func NewWorker(ctx context.Context, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		ctx:    ctx,
		logger: logger,
		group:  new(errgroup.Group),
	}
}

// Go runs fn on a new goroutine. A failing job is logged and reported by
// Wait; it does not stop other jobs.
func (w *Worker) Go(fn func(ctx context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.launched++
	w.group.Go(func() error {
		if err := fn(w.ctx); err != nil {
			w.logger.Warn("background job failed", "error", err)
			return err
		}
		return nil
	})
}

// Wait blocks until all jobs, including jobs launched by jobs, have
// finished. It returns the first error of every round of jobs.
func (w *Worker) Wait() error {
	var errs []error
	for {
		w.mu.Lock()
		group, launched := w.group, w.launched
		w.group = new(errgroup.Group)
		w.launched = 0
		w.mu.Unlock()

		if launched == 0 {
			return errors.Join(errs...)
		}
		if err := group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
}
