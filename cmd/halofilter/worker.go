package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"halofilter/internal/cluster"
	"halofilter/internal/faults"
	"halofilter/internal/transport"
)

const dialBackoff = 500 * time.Millisecond

func newWorkerCommand(a *app) *cobra.Command {
	var (
		url   string
		retry time.Duration
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Join a coordinator started with --listen and serve one job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				return faults.ErrInvalidConfig("connect", "a coordinator URL such as ws://host:7070/halo is required")
			}
			return a.runWorker(cmd.Context(), url, retry)
		},
	}
	cmd.Flags().StringVar(&url, "connect", "", "coordinator websocket URL")
	cmd.Flags().DurationVar(&retry, "retry", 0, "keep dialing for this long while the coordinator is not up yet")
	return cmd
}

func (a *app) runWorker(ctx context.Context, url string, retry time.Duration) error {
	logger := a.logger.Named("transport")
	opts := transport.WSOptions{Compress: a.cfg.Compress, WriteWait: wsWriteWait, Logger: logger}

	deadline := time.Now().Add(retry)
	var (
		t   transport.Transport
		err error
	)
	for {
		t, err = transport.DialWorker(ctx, url, opts)
		if err == nil || errors.Is(err, context.Canceled) || time.Now().After(deadline) {
			break
		}
		logger.Debug("coordinator not reachable, retrying", zap.String("url", url), zap.Error(err))
		select {
		case <-time.After(dialBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	defer t.Close()

	return cluster.NewWorker(t, cluster.Options{Threads: a.cfg.PassThreads, Logger: a.logger}).Run(ctx)
}
