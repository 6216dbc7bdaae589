package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"autosub/internal/report"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var showRuns bool

	cmd := &cobra.Command{
		Use:   "history [path]",
		Short: "Show recent pipeline results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := report.Open(filepath.Join(cfg.Paths.LogDir, "history.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if showRuns {
				runs, err := store.RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No recorded runs")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						fmt.Sprintf("%d", run.ID),
						run.StartedAt.Local().Format(time.DateTime),
						run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
						fmt.Sprintf("%d", run.Muxed),
						fmt.Sprintf("%d", run.Skipped),
						fmt.Sprintf("%d", run.Failed),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Started", "Duration", "Muxed", "Skipped", "Failed"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight}))
				return nil
			}

			var jobs []report.JobRecord
			if len(args) == 1 {
				jobs, err = store.JobsForPath(cmd.Context(), args[0], limit)
			} else {
				jobs, err = store.RecentJobs(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No recorded jobs")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				detail := job.OutputPath
				if job.ErrorKind != "" {
					detail = job.ErrorKind
				}
				rows = append(rows, []string{
					job.CreatedAt.Local().Format(time.DateTime),
					job.Path,
					job.Outcome,
					fmt.Sprintf("%d", job.Attempts),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "File", "Outcome", "Attempts", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&showRuns, "runs", false, "Show run summaries instead of per-file results")
	return cmd
}
