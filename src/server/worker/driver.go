package worker

import (
	"context"
	"sync"

	"github.com/storemill/storemill/src/internal/errors"
	"github.com/storemill/storemill/src/internal/log"
	"github.com/storemill/storemill/src/internal/pctx"
	"github.com/storemill/storemill/src/internal/storage/chunk"
	"github.com/storemill/storemill/src/internal/storage/filestore"
	"github.com/storemill/storemill/src/internal/storage/sortrun"
	"github.com/storemill/storemill/src/internal/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task names the sorted run files feeding one chunk build.  All runs of a
// task must carry records for the same (node, partition, chunk).
type Task struct {
	Runs []string
}

// Driver fans a batch of chunk-build tasks out over a bounded pool of
// workers.  When Attempts is above one, each task is built that many times
// concurrently; attempts race to the same final names and the rename-based
// publish keeps the output consistent regardless of which attempt lands last.
type Driver struct {
	store       filestore.Client
	cfg         chunk.BuilderConfig
	parallelism int64
	attempts    int
}

// NewDriver creates a driver running at most parallelism concurrent builds.
func NewDriver(store filestore.Client, cfg chunk.BuilderConfig, parallelism int64, attempts int) *Driver {
	if parallelism < 1 {
		parallelism = 1
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Driver{
		store:       store,
		cfg:         cfg,
		parallelism: parallelism,
		attempts:    attempts,
	}
}

// Build runs every task to completion and returns the merged collision stats.
// The first failing attempt cancels the batch.
func (d *Driver) Build(ctx context.Context, tasks []Task) (*chunk.CollisionStats, error) {
	ctx = pctx.Child(ctx, "driver")
	log.Info(ctx, "starting chunk builds",
		zap.Int("tasks", len(tasks)),
		zap.Int64("parallelism", d.parallelism),
		zap.Int("attempts", d.attempts))
	var (
		mu    sync.Mutex
		stats chunk.CollisionStats
	)
	sem := semaphore.NewWeighted(d.parallelism)
	eg, ctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		for attempt := 0; attempt < d.attempts; attempt++ {
			i, attempt, task := i, attempt, task
			eg.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return errors.EnsureStack(err)
				}
				defer sem.Release(1)
				ctx := pctx.Child(ctx, "", pctx.WithFields(
					zap.Int("task", i), zap.Int("attempt", attempt)))
				w := New(d.store, d.cfg)
				if err := d.runTask(ctx, w, task); err != nil {
					return errors.Wrapf(err, "task %d attempt %d", i, attempt)
				}
				mu.Lock()
				stats.Merge(w.Stats())
				mu.Unlock()
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (d *Driver) runTask(ctx context.Context, w *Worker, task Task) (retErr error) {
	its := make([]stream.Iterator[sortrun.Entry], 0, len(task.Runs))
	for _, name := range task.Runs {
		f, err := d.store.Open(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "open run %s", name)
		}
		defer errors.Close(&retErr, f, "close run %s", name)
		its = append(its, sortrun.NewReader(f, chunk.DigestBytes(d.cfg.RetainKeys)))
	}
	groups := sortrun.NewGrouper(sortrun.Merge(its), d.cfg.RetainKeys)
	return w.Run(ctx, groups)
}
