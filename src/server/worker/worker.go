// Package worker runs chunk-builder workers: each worker consumes one
// partition's sorted key-group stream and publishes one index/data file pair.
//
// Workers are single-threaded internally; parallelism exists only across
// workers (see Driver).  Workers share no mutable state with each other except
// the final output namespace, where the rename-based publish makes the last
// successful writer win.
package worker

import (
	"context"

	"github.com/storemill/storemill/src/internal/errors"
	"github.com/storemill/storemill/src/internal/log"
	"github.com/storemill/storemill/src/internal/pctx"
	"github.com/storemill/storemill/src/internal/storage/chunk"
	"github.com/storemill/storemill/src/internal/storage/filestore"
	"github.com/storemill/storemill/src/internal/stream"
	"go.uber.org/zap"
)

// Worker builds one chunk from one grouped input stream.
type Worker struct {
	store filestore.Client
	cfg   chunk.BuilderConfig
	stats chunk.CollisionStats
}

// New creates a worker.  Each worker handles exactly one Run.
func New(store filestore.Client, cfg chunk.BuilderConfig) *Worker {
	return &Worker{
		store: store,
		cfg:   cfg,
	}
}

// Stats returns the worker's collision stats; read them after Run returns.
func (w *Worker) Stats() *chunk.CollisionStats {
	return &w.stats
}

// Run consumes the key-group stream and publishes the resulting chunk.  Any
// error abandons the attempt: nothing is published under the final names, and
// only the scratch files remain.
func (w *Worker) Run(ctx context.Context, groups stream.Iterator[chunk.KeyGroup]) error {
	ctx = pctx.Child(ctx, "worker")
	b, err := chunk.NewBuilder(ctx, w.store, w.cfg, &w.stats)
	if err != nil {
		return err
	}
	if err := stream.ForEach(ctx, groups, func(g chunk.KeyGroup) error {
		return b.ProcessGroup(ctx, g)
	}); err != nil {
		errors.JoinInto(&err, b.Discard(ctx))
		return w.describe(ctx, b, err)
	}
	if err := b.Close(ctx); err != nil {
		return w.describe(ctx, b, err)
	}
	if md, ok := b.Metadata(); ok {
		log.Info(ctx, "chunk published",
			zap.Uint32("node", md.NodeID),
			zap.Uint32("partition", md.PartitionID),
			zap.Uint32("chunk", md.ChunkID),
			zap.Uint64("collisionGroups", w.stats.Events()),
			zap.Int("maxGroupSize", w.stats.MaxGroupSize()))
	}
	return nil
}

// describe annotates a failure with the chunk being built, so the surrounding
// job can report which (node, partition, chunk) to look at.
func (w *Worker) describe(ctx context.Context, b *chunk.Builder, err error) error {
	md, ok := b.Metadata()
	if !ok {
		return err
	}
	log.Error(ctx, "worker failed",
		zap.Uint32("node", md.NodeID),
		zap.Uint32("partition", md.PartitionID),
		zap.Uint32("chunk", md.ChunkID),
		zap.Error(err))
	return errors.Wrapf(err, "build chunk %d (node %d, partition %d)", md.ChunkID, md.NodeID, md.PartitionID)
}
