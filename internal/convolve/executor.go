package convolve

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"halofilter/internal/halo"
	"halofilter/internal/kernel"
)

// Executor runs a whole filter chain over one extended buffer without any
// communication between passes.
type Executor struct {
	threads int
	logger  *zap.Logger
}

// NewExecutor creates an executor that splits each pass across threads
// goroutines. threads <= 1 filters sequentially.
func NewExecutor(threads int, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{threads: max(threads, 1), logger: logger}
}

// Run applies chain to s in place. The buffer's halo depth must equal the
// chain length: pass k only rewrites ValidWindow(k, size, depth), so after
// the last pass the owned rows match a pass-by-pass filtering of the whole
// image. Context cancellation is checked between passes.
func (e *Executor) Run(ctx context.Context, s *halo.ExtendedSlice, chain kernel.Chain) error {
	if s.Depth() != chain.Depth() {
		return fmt.Errorf("halo depth %d does not match chain length %d", s.Depth(), chain.Depth())
	}

	size := s.Partition().Size()
	scratch := make([]byte, s.Rows()*(s.Width()+2))
	start := time.Now()

	for pos, k := range chain {
		if err := ctx.Err(); err != nil {
			return err
		}
		win := ValidWindow(pos, size, s.Depth())
		ApplyPass(s, k, win, scratch, e.threads)
		e.logger.Debug("pass applied",
			zap.Int("position", pos),
			zap.String("filter", k.Name()),
			zap.Int("window_start", win.Start),
			zap.Int("window_end", win.End))
	}

	e.logger.Debug("chain applied",
		zap.Stringer("partition", s.Partition()),
		zap.Int("passes", chain.Depth()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
