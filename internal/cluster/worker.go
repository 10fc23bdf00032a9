package cluster

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"halofilter/internal/convolve"
	"halofilter/internal/halo"
	"halofilter/internal/kernel"
	"halofilter/internal/partition"
	"halofilter/internal/raster"
	"halofilter/internal/transport"
)

// Options configures both sides of a job.
type Options struct {
	// JobID tags the header and every log line. Empty means a fresh uuid.
	JobID string
	// Threads is the number of goroutines per convolution pass.
	Threads int
	Logger  *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// filterSlice loads in into a fresh extended buffer for part, runs the
// whole chain locally and returns the owned rows.
func filterSlice(ctx context.Context, exec *convolve.Executor, dims raster.Dimensions, part partition.Partition,
	chain kernel.Chain, in transport.RowBlock) (transport.RowBlock, error) {
	s, err := halo.New(dims, len(in.Planes), part, chain.Depth())
	if err != nil {
		return transport.RowBlock{}, err
	}
	if in.Count > 0 {
		for c, p := range in.Planes {
			if err := s.Load(c, in.Start, p); err != nil {
				return transport.RowBlock{}, err
			}
		}
	}
	if err := exec.Run(ctx, s, chain); err != nil {
		return transport.RowBlock{}, err
	}
	return ownedBlock(s), nil
}

// Worker is a non-coordinator rank. It receives one header and one
// extended slice, filters it and ships its owned rows back to rank 0.
type Worker struct {
	t       transport.Transport
	threads int
	logger  *zap.Logger
}

// NewWorker binds a worker to its transport endpoint.
func NewWorker(t transport.Transport, opts Options) *Worker {
	return &Worker{
		t:       t,
		threads: opts.Threads,
		logger:  opts.logger().Named("worker").With(zap.Int("rank", t.Rank())),
	}
}

// Run serves exactly one job.
func (w *Worker) Run(ctx context.Context) error {
	h, err := w.t.ReceiveHeader(ctx, 0)
	if err != nil {
		return fmt.Errorf("rank %d: receive header: %w", w.t.Rank(), err)
	}
	logger := w.logger.With(zap.String("job_id", h.JobID))

	chain, err := kernel.ParseChain(h.Filters)
	if err != nil {
		return err
	}
	dims := raster.Dimensions{Width: h.Width, Height: h.Height}
	if !dims.Valid() {
		return fmt.Errorf("rank %d: invalid dimensions %s in header", w.t.Rank(), dims)
	}
	if _, err := raster.FormatForChannels(h.Channels); err != nil {
		return fmt.Errorf("rank %d: %w", w.t.Rank(), err)
	}
	if err := partition.Validate(dims.Height, w.t.Size()); err != nil {
		return err
	}
	part := partition.For(dims.Height, w.t.Size(), w.t.Rank())

	in, err := w.t.ReceiveRows(ctx, 0)
	if err != nil {
		return fmt.Errorf("rank %d: receive slice: %w", w.t.Rank(), err)
	}
	if err := checkHaloBlock(in, part, chain.Depth(), dims); err != nil {
		return err
	}
	if len(in.Planes) != h.Channels {
		return fmt.Errorf("%s received %d planes, header says %d", part, len(in.Planes), h.Channels)
	}
	logger.Debug("slice received",
		zap.Stringer("partition", part),
		zap.Int("halo_start", in.Start),
		zap.Int("halo_rows", in.Count))

	start := time.Now()
	exec := convolve.NewExecutor(w.threads, logger.Named("executor"))
	out, err := filterSlice(ctx, exec, dims, part, chain, in)
	if err != nil {
		return fmt.Errorf("%s: %w", part, err)
	}

	if err := w.t.SendRows(ctx, 0, out); err != nil {
		return fmt.Errorf("rank %d: send owned rows: %w", w.t.Rank(), err)
	}
	logger.Debug("owned rows sent",
		zap.Stringer("partition", part),
		zap.Duration("filter_time", time.Since(start)))
	return nil
}
