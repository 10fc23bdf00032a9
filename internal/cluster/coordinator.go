// Package cluster runs a filter job across a pool of ranks: the coordinator
// (rank 0) distributes extended slices, filters its own partition, gathers
// the owned rows of every worker in rank order and reconstructs the image.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"halofilter/internal/convolve"
	"halofilter/internal/faults"
	"halofilter/internal/kernel"
	"halofilter/internal/partition"
	"halofilter/internal/raster"
	"halofilter/internal/transport"
)

// Coordinator is rank 0 of a job.
type Coordinator struct {
	t       transport.Transport
	jobID   string
	threads int
	logger  *zap.Logger
}

// NewCoordinator binds a coordinator to rank 0's transport endpoint.
func NewCoordinator(t transport.Transport, opts Options) *Coordinator {
	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	return &Coordinator{
		t:       t,
		jobID:   jobID,
		threads: opts.Threads,
		logger:  opts.logger().Named("coordinator").With(zap.String("job_id", jobID)),
	}
}

// JobID returns the id sent to every worker.
func (c *Coordinator) JobID() string { return c.jobID }

// Run filters img with chain across all ranks of the transport. Nothing is
// sent when the job cannot be planned.
func (c *Coordinator) Run(ctx context.Context, img *raster.Image, chain kernel.Chain) (*raster.Image, error) {
	if c.t.Rank() != 0 {
		return nil, fmt.Errorf("coordinator must be rank 0, got %d", c.t.Rank())
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if chain.Depth() == 0 {
		return nil, faults.ErrEmptyChain()
	}
	dims, workers := img.Dims, c.t.Size()
	if err := partition.Validate(dims.Height, workers); err != nil {
		return nil, err
	}

	start := time.Now()
	parts := partition.Plan(dims.Height, workers)
	planes := raster.SplitPlanes(img)
	depth := chain.Depth()
	c.logger.Info("job planned",
		zap.Stringer("dims", dims),
		zap.Int("channels", len(planes)),
		zap.Strings("filters", chain.Names()),
		zap.Int("workers", workers),
		zap.Int("halo_depth", depth))

	header := transport.Header{
		JobID:    c.jobID,
		Width:    dims.Width,
		Height:   dims.Height,
		Channels: len(planes),
		Filters:  chain.Names(),
	}
	for rank := 1; rank < workers; rank++ {
		if err := c.t.SendHeader(ctx, rank, header); err != nil {
			return nil, fmt.Errorf("send header to rank %d: %w", rank, err)
		}
		block := haloBlock(planes, parts[rank], depth)
		if err := c.t.SendRows(ctx, rank, block); err != nil {
			return nil, fmt.Errorf("send slice to rank %d: %w", rank, err)
		}
		c.logger.Debug("slice distributed",
			zap.Stringer("partition", parts[rank]),
			zap.Int("halo_start", block.Start),
			zap.Int("halo_rows", block.Count))
	}

	exec := convolve.NewExecutor(c.threads, c.logger.Named("executor"))
	own, err := filterSlice(ctx, exec, dims, parts[0], chain, haloBlock(planes, parts[0], depth))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", parts[0], err)
	}

	out := make([]*raster.Plane, len(planes))
	for ch := range out {
		out[ch] = raster.NewPlane(dims)
	}
	if err := Assemble(out, parts[0], own); err != nil {
		return nil, err
	}
	for rank := 1; rank < workers; rank++ {
		block, err := c.t.ReceiveRows(ctx, rank)
		if err != nil {
			return nil, fmt.Errorf("gather from rank %d: %w", rank, err)
		}
		if err := Assemble(out, parts[rank], block); err != nil {
			return nil, err
		}
		c.logger.Debug("rows gathered", zap.Stringer("partition", parts[rank]))
	}

	result, err := raster.MergePlanes(out)
	if err != nil {
		return nil, err
	}
	c.logger.Info("job complete", zap.Duration("filter_time", time.Since(start)))
	return result, nil
}

// RunLocal runs a job on an in-process mesh of workers ranks: rank 0 is the
// coordinator and every other rank a goroutine. The first failing rank
// cancels the others.
func RunLocal(ctx context.Context, img *raster.Image, chain kernel.Chain, workers int, opts Options) (*raster.Image, error) {
	if err := partition.Validate(img.Dims.Height, workers); err != nil {
		return nil, err
	}

	// header + slice per worker, so distribution never blocks on a busy rank
	mesh := transport.NewLocalMesh(workers, 2)
	defer func() {
		for _, t := range mesh {
			_ = t.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for rank := 1; rank < workers; rank++ {
		w := NewWorker(mesh[rank], opts)
		g.Go(func() error { return w.Run(gctx) })
	}

	var out *raster.Image
	coord := NewCoordinator(mesh[0], opts)
	g.Go(func() error {
		var err error
		out, err = coord.Run(gctx, img, chain)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
