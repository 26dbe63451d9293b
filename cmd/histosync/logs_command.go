package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"histosync/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines   int
		follow  bool
		command string
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the latest run log for a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			_, ds, err := ctx.dataset()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				runLogs, err := logs.RunLogs(cfg.Paths.LogDir, ds.Name, command)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runLogs))
				for _, l := range runLogs {
					rows = append(rows, []string{l.Command, humanize.Time(l.ModTime), l.Path})
				}
				fmt.Fprintln(out, renderTable([]string{"Command", "Modified", "Path"}, rows, nil))
				return nil
			}

			latest, err := logs.Latest(cfg.Paths.LogDir, ds.Name, command)
			if err != nil {
				return err
			}
			tail, offset, err := logs.Last(latest.Path, lines)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "==> %s <==\n", latest.Path)
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			runCtx, stop := stageContext(cmd)
			defer stop()
			return logs.Follow(runCtx, latest.Path, offset, 500*time.Millisecond, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().StringVar(&command, "command", "", "Only consider logs from this command (for example sync)")
	cmd.Flags().BoolVar(&list, "list", false, "List run logs instead of printing one")
	return cmd
}
