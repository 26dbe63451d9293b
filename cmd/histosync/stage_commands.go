package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"histosync/internal/capacity"
	"histosync/internal/download"
	"histosync/internal/downsample"
	"histosync/internal/imagetool"
	"histosync/internal/preflight"
	"histosync/internal/progress"
	"histosync/internal/stage"
	"histosync/internal/upload"
	"histosync/internal/workflow"
)

// stageCommand describes a single-stage command.
type stageCommand struct {
	use    string
	short  string
	long   string
	follow bool
	tools  preflight.Requirements
	build  func(s *session) stage.Handler
}

func newStageCommands(ctx *commandContext) []*cobra.Command {
	defs := []stageCommand{
		{
			use:   download.OriginalsStage,
			short: "Download remote originals that still need downsampling",
			long: "Fetches every remote original that is neither downsampled locally nor on the error list.\n" +
				"Each fetch waits for the capacity threshold first.",
			build: func(s *session) stage.Handler {
				return download.NewOriginals(s.recon, s.remote, newCapacityGuard(s), s.cfg.Capacity.ThresholdGB, s.logger)
			},
		},
		{
			use:   downsample.StageName,
			short: "Downsample local originals with the shrink tool",
			long: "Runs the shrink tool on every downloaded original and deletes the original on success.\n" +
				"Images the tool rejects are appended to the dataset error list.",
			follow: true,
			tools:  preflight.Requirements{Shrink: true},
			build: func(s *session) stage.Handler {
				return downsample.New(s.recon, newShrinker(s), s.logger)
			},
		},
		{
			use:   upload.StageName,
			short: "Upload local downsamples missing from the remote archive",
			build: func(s *session) stage.Handler {
				return upload.New(s.recon, s.remote, s.logger)
			},
		},
		{
			use:   download.DownsamplesStage,
			short: "Download remote downsamples missing locally",
			build: func(s *session) stage.Handler {
				return download.NewDownsamples(s.recon, s.remote, newCapacityGuard(s), s.cfg.Capacity.ThresholdGB, s.logger)
			},
		},
	}

	cmds := make([]*cobra.Command, 0, len(defs))
	for _, def := range defs {
		cmds = append(cmds, def.command(ctx))
	}
	return cmds
}

func (def stageCommand) command(ctx *commandContext) *cobra.Command {
	follow := def.follow
	cmd := &cobra.Command{
		Use:   def.use,
		Short: def.short,
		Long:  def.long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, def.use, def.tools, follow, func(s *session) []stage.Handler {
				return []stage.Handler{def.build(s)}
			})
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", def.follow, "Keep waiting while upstream stages still have work")
	return cmd
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download, downsample and upload in one process",
		Long: "Interleaves download, downsample and upload one image at a time until every queue is empty.\n" +
			"Use --follow to keep retrying images the archive refuses, every workflow.poll_interval,\n" +
			"until they transfer or workflow.max_stall passes without progress.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, "sync", preflight.Requirements{Shrink: true}, follow, func(s *session) []stage.Handler {
				return []stage.Handler{
					download.NewOriginals(s.recon, s.remote, newCapacityGuard(s), s.cfg.Capacity.ThresholdGB, s.logger),
					downsample.New(s.recon, newShrinker(s), s.logger),
					upload.New(s.recon, s.remote, s.logger),
				}
			})
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep retrying images the archive holds back")
	return cmd
}

func newCapacityGuard(s *session) *capacity.Guard {
	return capacity.New(s.cfg.Capacity, s.cfg.Paths.ImagesDir, s.logger)
}

func newShrinker(s *session) *imagetool.Runner {
	return imagetool.NewRunner(s.cfg.Tools.ShrinkBinary, s.cfg.ToolTimeout(), s.logger)
}

// runStages opens a session, runs handlers (a single runner or a pipeline)
// and prints the outcome summary.
func runStages(cmd *cobra.Command, ctx *commandContext, command string, tools preflight.Requirements, follow bool, build func(*session) []stage.Handler) (err error) {
	runCtx, stop := stageContext(cmd)
	defer stop()

	s, err := ctx.openSession(runCtx, sessionOptions{command: command, exclusive: true, tools: tools})
	if err != nil {
		return err
	}
	defer func() { s.close(runCtx, err) }()

	reporter := progress.New(cmd.ErrOrStderr(), shouldColorize(cmd.ErrOrStderr()), s.logger)

	opts := workflow.OptionsFromConfig(s.cfg)
	opts.Follow = follow
	opts.RunID = s.run.ID
	opts.Recorder = s.recorder()
	opts.Reporter = reporter
	opts.Logger = s.logger

	handlers := build(s)
	summaries := make(map[string]workflow.Summary, len(handlers))
	if len(handlers) == 1 {
		runner := workflow.NewRunner(handlers[0], opts)
		summary, runErr := runner.Run(runCtx)
		summaries[runner.Name()] = summary
		err = runErr
	} else {
		summaries, err = workflow.NewPipeline(handlers, opts).Run(runCtx)
	}
	reporter.Close()

	printSummary(cmd.OutOrStdout(), handlers, summaries)
	if s.logPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Log: %s\n", s.logPath)
	}
	return err
}

func printSummary(out io.Writer, handlers []stage.Handler, summaries map[string]workflow.Summary) {
	if len(summaries) == 0 {
		return
	}
	rows := make([][]string, 0, len(handlers))
	for _, h := range handlers {
		name := h.Name()
		sum := summaries[name]
		rows = append(rows, []string{
			stageLabel(name),
			strconv.Itoa(sum.Done),
			strconv.Itoa(sum.ToolFailures),
			strconv.Itoa(sum.Skipped),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Done", "Tool failures", "Skipped"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
}

// stageContext cancels on SIGINT and SIGTERM.
func stageContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
