package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"halofilter/internal/cluster"
	"halofilter/internal/codec"
	"halofilter/internal/config"
	"halofilter/internal/convolve"
	"halofilter/internal/faults"
	"halofilter/internal/history"
	"halofilter/internal/kernel"
	"halofilter/internal/logging"
	"halofilter/internal/partition"
	"halofilter/internal/raster"
	"halofilter/internal/transport"
)

// wsWriteWait bounds a single websocket frame write.
const wsWriteWait = 30 * time.Second

type flags struct {
	configPath string
	workers    int
	threads    int
	listen     string
	compress   bool
	logLevel   string
	logFile    string
	dev        bool
	historyDB  string
	verify     bool
}

// app carries the resolved settings shared by every subcommand.
type app struct {
	flags  flags
	cfg    *config.Config
	logger *zap.Logger
	stderr io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr, logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "halofilter [flags] <input> <output> <filter>...",
		Short: "Apply a chain of 3x3 convolution filters across a pool of workers",
		Long: "halofilter splits an image by rows across a pool of workers. Each worker receives\n" +
			"its rows plus one halo row per filter on each side, applies the whole chain\n" +
			"locally and sends back its own rows.\n\n" +
			"Filters: " + strings.Join(kernel.Names(), ", "),
		Args:              validateJobArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = a.logger.Sync() },
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runJob(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	bindPersistentFlags(cmd.PersistentFlags(), &a.flags)
	bindJobFlags(cmd.Flags(), &a.flags)

	cmd.AddCommand(
		newWorkerCommand(a),
		newFiltersCommand(),
		newHistoryCommand(a),
	)
	return cmd
}

func bindPersistentFlags(fs *pflag.FlagSet, f *flags) {
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.IntVar(&f.threads, "threads", 1, "goroutines per convolution pass ("+config.EnvPassThreads+")")
	fs.BoolVar(&f.compress, "compress", false, "zstd-compress row frames on the network ("+config.EnvCompress+")")
	fs.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error ("+config.EnvLogLevel+")")
	fs.StringVar(&f.logFile, "log-file", "", "also write JSON logs to this rotated file ("+config.EnvLogFile+")")
	fs.BoolVar(&f.dev, "dev", false, "human-readable coloured logs ("+config.EnvDev+")")
	fs.StringVar(&f.historyDB, "history-db", "", "SQLite file to record jobs in ("+config.EnvHistoryDB+")")
}

func bindJobFlags(fs *pflag.FlagSet, f *flags) {
	fs.IntVarP(&f.workers, "workers", "n", 0, "job size including the coordinator ("+config.EnvWorkers+", default GOMAXPROCS capped at the image height)")
	fs.StringVar(&f.listen, "listen", "", "wait for remote workers on this address instead of running them in-process ("+config.EnvListen+")")
	fs.BoolVar(&f.verify, "verify", false, "compare the result with a single-process filtering of the whole image")
}

func validateJobArgs(_ *cobra.Command, args []string) error {
	switch len(args) {
	case 0, 1:
		return faults.ErrInvalidConfig("arguments", "want <input> <output> <filter>...")
	case 2:
		return faults.ErrEmptyChain()
	}
	return nil
}

// setup resolves configuration (defaults, file, .env, environment, then
// explicitly set flags) and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}

	fs := cmd.Flags()
	if fs.Changed("workers") {
		cfg.Workers = a.flags.workers
		cfg.AutoWorkers = false
	}
	if fs.Changed("threads") {
		cfg.PassThreads = a.flags.threads
	}
	if fs.Changed("listen") {
		cfg.Listen = a.flags.listen
	}
	if fs.Changed("compress") {
		cfg.Compress = a.flags.compress
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if fs.Changed("log-file") {
		cfg.LogFile = a.flags.logFile
	}
	if fs.Changed("dev") {
		cfg.Dev = a.flags.dev
	}
	if fs.Changed("history-db") {
		cfg.HistoryDB = a.flags.historyDB
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Dev:     cfg.Dev,
		Console: a.stderr,
	})
	if err != nil {
		return faults.ErrInvalidConfig("log_level", err.Error())
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func (a *app) runJob(ctx context.Context, out io.Writer, args []string) (err error) {
	input, output, names := args[0], args[1], args[2:]

	// configuration errors surface before the input is touched
	chain, err := kernel.ParseChain(names)
	if err != nil {
		return err
	}
	for _, path := range []string{input, output} {
		if _, err := codec.KindForPath(path); err != nil {
			return err
		}
	}

	rec := history.Job{
		ID:      uuid.New(),
		Input:   input,
		Output:  output,
		Filters: chain.Names(),
		Workers: a.cfg.Workers,
	}
	started := time.Now()
	if a.cfg.HistoryDB != "" {
		defer func() {
			rec.Duration = time.Since(started)
			a.record(context.WithoutCancel(ctx), rec, err)
		}()
	}
	logger := a.logger.With(zap.String("job_id", rec.ID.String()))

	start := time.Now()
	img, err := codec.Load(input)
	if err != nil {
		return err
	}
	loadTime := time.Since(start)
	rec.Width, rec.Height, rec.Channels = img.Dims.Width, img.Dims.Height, img.Format.Channels()
	workers := a.cfg.WorkersFor(img.Dims.Height)
	rec.Workers = workers
	logger.Info("image loaded",
		zap.String("path", input),
		zap.Stringer("dims", img.Dims),
		zap.Int("channels", img.Format.Channels()),
		zap.Int("workers", workers),
		zap.Duration("load_time", loadTime))

	start = time.Now()
	opts := cluster.Options{JobID: rec.ID.String(), Threads: a.cfg.PassThreads, Logger: a.logger}
	var result *raster.Image
	if a.cfg.Listen == "" {
		result, err = cluster.RunLocal(ctx, img, chain, workers, opts)
	} else {
		result, err = a.runRemote(ctx, img, chain, workers, opts)
	}
	if err != nil {
		return err
	}
	filterTime := time.Since(start)

	if a.flags.verify {
		if err := verify(img, chain, result); err != nil {
			return err
		}
		logger.Info("result verified against single-process filtering")
	}

	start = time.Now()
	if err := codec.Save(output, result); err != nil {
		return err
	}
	saveTime := time.Since(start)

	logger.Info("job finished",
		zap.String("output", output),
		zap.Duration("filter_time", filterTime),
		zap.Duration("save_time", saveTime),
		zap.Duration("total_time", loadTime+filterTime+saveTime))
	printSummary(out, img, chain, workers, loadTime, filterTime, saveTime)
	return nil
}

// runRemote serves the job to workers that connect over websocket.
func (a *app) runRemote(ctx context.Context, img *raster.Image, chain kernel.Chain, workers int, opts cluster.Options) (*raster.Image, error) {
	if err := partition.Validate(img.Dims.Height, workers); err != nil {
		return nil, err
	}
	logger := a.logger.Named("transport")
	hub, err := transport.NewHub(workers, transport.WSOptions{
		Compress:  a.cfg.Compress,
		WriteWait: wsWriteWait,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	srv, addr, err := transport.Serve(a.cfg.Listen, a.cfg.WSPath, hub)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("waiting for workers",
		zap.String("url", fmt.Sprintf("ws://%s%s", addr, a.cfg.WSPath)),
		zap.Int("expected", workers-1))
	t, err := hub.Wait(ctx)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	return cluster.NewCoordinator(t, opts).Run(ctx, img, chain)
}

func verify(img *raster.Image, chain kernel.Chain, got *raster.Image) error {
	want := convolve.Sequential(img, chain)
	if bytes.Equal(want.Pix, got.Pix) {
		return nil
	}
	diff := 0
	for i := range want.Pix {
		if want.Pix[i] != got.Pix[i] {
			diff++
		}
	}
	return fmt.Errorf("verification failed: %d of %d samples differ from single-process filtering", diff, len(want.Pix))
}

func (a *app) record(ctx context.Context, rec history.Job, jobErr error) {
	rec.Status = history.StatusSucceeded
	if jobErr != nil {
		rec.Status = history.StatusFailed
		rec.Error = jobErr.Error()
	}

	store, err := history.Open(ctx, a.cfg.HistoryDB, a.logger.Named("history"))
	if err != nil {
		a.logger.Warn("job history unavailable", zap.Error(err))
		return
	}
	defer store.Close()
	if _, err := store.Record(ctx, rec); err != nil {
		a.logger.Warn("failed to record job", zap.Error(err))
	}
}

func printSummary(w io.Writer, img *raster.Image, chain kernel.Chain, workers int, load, filter, save time.Duration) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	bold.Fprintf(w, "Image: %dx%d pixels, %s\n", img.Dims.Width, img.Dims.Height, img.Format)
	fmt.Fprintf(w, "Filters: %s on %d workers\n", strings.Join(chain.Names(), " → "), workers)
	dim.Fprintf(w, "Load time: %dms\n", load.Milliseconds())
	dim.Fprintf(w, "Filter time: %dms\n", filter.Milliseconds())
	dim.Fprintf(w, "Save time: %dms\n", save.Milliseconds())
	color.New(color.FgGreen).Fprintf(w, "Total time: %dms\n", (load + filter + save).Milliseconds())
}
