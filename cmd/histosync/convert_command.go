package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"histosync/internal/config"
	"histosync/internal/imagetool"
	"histosync/internal/journal"
	"histosync/internal/logging"
	"histosync/internal/preflight"
	"histosync/internal/progress"
	"histosync/internal/rgba"
	"histosync/internal/services"
	"histosync/internal/stage"
	"histosync/internal/workflow"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var srcDir, dstDir string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert RGBA images in a directory to RGB",
		Long: "Runs the RGBA conversion tool on every image in --src that is missing from --dst.\n" +
			"Rejected images are recorded in the error list inside --dst and skipped afterwards.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			src, err := config.ExpandPath(strings.TrimSpace(srcDir))
			if err != nil {
				return err
			}
			dst, err := config.ExpandPath(strings.TrimSpace(dstDir))
			if err != nil {
				return err
			}
			if src == "" || dst == "" {
				return errors.New("both --src and --dst are required")
			}
			if src == dst {
				return errors.New("--src and --dst must differ")
			}

			runCtx, stop := stageContext(cmd)
			defer stop()

			if failed := preflight.Failed(preflight.RunAll(runCtx, cfg, preflight.Requirements{RGBA: true})); len(failed) > 0 {
				return services.Wrap(services.ErrConfiguration, rgba.StageName, "preflight",
					fmt.Sprintf("%s: %s", failed[0].Name, failed[0].Detail), nil)
			}

			label := filepath.Base(dst)
			logger, err := logging.NewFromConfig(cfg, runLogName(label, "convert", time.Now()))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			opts := workflow.OptionsFromConfig(cfg)
			opts.Logger = logger
			if cfg.Journal.Enabled {
				j, err := journal.Open(cfg.JournalPath())
				if err != nil {
					return err
				}
				defer j.Close()
				run, err := j.StartRun(runCtx, label, "convert")
				if err != nil {
					return err
				}
				defer func() {
					_ = j.FinishRun(context.WithoutCancel(runCtx), run.ID, runStatusFor(err), err)
				}()
				opts.RunID = run.ID
				opts.Recorder = j
			}

			reporter := progress.New(cmd.ErrOrStderr(), shouldColorize(cmd.ErrOrStderr()), logger)
			opts.Reporter = reporter

			tool := imagetool.NewRunner(cfg.Tools.RGBABinary, cfg.ToolTimeout(), logger)
			handler := rgba.New(src, dst, cfg.Images.Extension, tool, logger)
			summary, err := workflow.NewRunner(handler, opts).Run(runCtx)
			reporter.Close()

			printSummary(cmd.OutOrStdout(), []stage.Handler{handler}, map[string]workflow.Summary{handler.Name(): summary})
			return err
		},
	}

	cmd.Flags().StringVar(&srcDir, "src", "", "Directory of RGBA images")
	cmd.Flags().StringVar(&dstDir, "dst", "", "Directory for the converted images")
	return cmd
}
