package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"histosync/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs, or the events of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return errors.New("run journal is disabled (journal.enabled = false)")
			}
			j, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return err
			}
			defer j.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := j.Run(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				counts, err := j.OutcomeCounts(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s: %s on %s, %s\n", run.ID, run.Command, run.Dataset, run.Status)
				fmt.Fprintf(out, "Started %s, %s\n", run.StartedAt.Local().Format(time.DateTime), runDuration(run))
				if run.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", run.Error)
				}
				fmt.Fprintf(out, "Done %d, tool failures %d, skipped %d, failed %d\n",
					counts[journal.OutcomeDone], counts[journal.OutcomeToolFailure],
					counts[journal.OutcomeSkipped], counts[journal.OutcomeFailed])
				if !showEvents {
					return nil
				}
				events, err := j.Events(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(events))
				for _, ev := range events {
					rows = append(rows, []string{
						ev.RecordedAt.Local().Format(time.TimeOnly),
						stageLabel(ev.Stage),
						ev.Basename,
						string(ev.Outcome),
						ev.Duration.Round(time.Millisecond).String(),
						ev.Detail,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Time", "Stage", "Image", "Outcome", "Duration", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			}

			runs, err := j.Runs(cmd.Context(), strings.TrimSpace(ctx.flags.dataset), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					run.Dataset,
					run.Command,
					humanize.Time(run.StartedAt),
					runDuration(run),
					string(run.Status),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Dataset", "Command", "Started", "Duration", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&showEvents, "events", false, "List every processed image of the run")
	return cmd
}

func runDuration(run journal.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}
