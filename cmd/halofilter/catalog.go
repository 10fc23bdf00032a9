package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"halofilter/internal/faults"
	"halofilter/internal/history"
	"halofilter/internal/kernel"
)

func newFiltersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List the available filters and their normalised weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			name := color.New(color.FgCyan, color.Bold)
			for _, n := range kernel.Names() {
				k, err := kernel.Lookup(n)
				if err != nil {
					return err
				}
				name.Fprintln(out, n)
				w := k.Weights()
				for r := range 3 {
					fmt.Fprintf(out, "  % .4f % .4f % .4f\n", w[3*r], w[3*r+1], w[3*r+2])
				}
			}
			return nil
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently recorded jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.HistoryDB == "" {
				return faults.ErrInvalidConfig("history_db", "not set; use --history-db or HALO_HISTORY_DB")
			}
			return a.showHistory(cmd.Context(), cmd, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of jobs to show")
	return cmd
}

func (a *app) showHistory(ctx context.Context, cmd *cobra.Command, limit int) error {
	store, err := history.Open(ctx, a.cfg.HistoryDB, a.logger.Named("history"))
	if err != nil {
		return err
	}
	defer store.Close()

	jobs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "no jobs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSTATUS\tWORKERS\tSIZE\tFILTERS\tDURATION\tINPUT\tOUTPUT")
	for _, j := range jobs {
		status := color.GreenString(string(j.Status))
		if j.Status != history.StatusSucceeded {
			status = color.RedString(string(j.Status))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dx%d\t%v\t%s\t%s\t%s\n",
			j.CreatedAt.Format(time.DateTime), status, j.Workers, j.Width, j.Height,
			j.Filters, j.Duration, j.Input, j.Output)
	}
	return tw.Flush()
}
