package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"histosync/internal/config"
	"histosync/internal/logging"
	"histosync/internal/runlock"
	"histosync/internal/staging"
)

type cleanTarget struct {
	name string
	root string
}

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove abandoned partial files",
		Long: "Deletes in-flight .part files older than --max-age under the dataset directory, or under\n" +
			"every configured dataset when --dataset is omitted. Each dataset's run lock is taken first,\n" +
			"so a dataset with a running command is refused. Younger partial downloads are kept for resume.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			targets, err := cleanTargets(ctx, cfg)
			if err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = time.Duration(cfg.Workflow.StalePartHours) * time.Hour
			}

			out := cmd.OutOrStdout()
			if dryRun {
				cutoff := time.Now().Add(-maxAge)
				var count int
				var size int64
				for _, target := range targets {
					partials, err := staging.ListPartials(target.root)
					if err != nil {
						return err
					}
					for _, p := range partials {
						if p.ModTime.Before(cutoff) {
							fmt.Fprintf(out, "%s (%s)\n", p.Path, humanize.IBytes(uint64(p.Size)))
							count++
							size += p.Size
						}
					}
				}
				fmt.Fprintf(out, "Would remove %d partial files (%s)\n", count, humanize.IBytes(uint64(size)))
				return nil
			}

			for _, target := range targets {
				lock, err := runlock.Acquire(cfg.LockPath(target.name), target.name)
				if err != nil {
					return err
				}
				defer lock.Release()
			}

			logger, err := logging.NewFromConfig(cfg, "")
			if err != nil {
				return err
			}
			var removed int
			var failures []staging.CleanupError
			for _, target := range targets {
				result := staging.CleanStale(cmd.Context(), target.root, maxAge,
					logger.With(logging.String(logging.FieldDataset, target.name)))
				for _, path := range result.Removed {
					fmt.Fprintln(out, path)
				}
				removed += len(result.Removed)
				failures = append(failures, result.Errors...)
			}
			fmt.Fprintf(out, "Removed %d partial files\n", removed)
			if len(failures) > 0 {
				return fmt.Errorf("%d partial files could not be removed; first: %s: %w",
					len(failures), failures[0].Path, failures[0].Error)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Minimum age of removed files (default workflow.stale_part_hours)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the files without removing them")
	return cmd
}

// cleanTargets resolves --dataset, or every configured dataset without it.
func cleanTargets(ctx *commandContext, cfg *config.Config) ([]cleanTarget, error) {
	if ctx.flags.dataset != "" {
		_, ds, err := ctx.dataset()
		if err != nil {
			return nil, err
		}
		return []cleanTarget{{name: ds.Name, root: ds.Root()}}, nil
	}
	names := cfg.DatasetNames()
	targets := make([]cleanTarget, 0, len(names))
	for _, name := range names {
		settings, err := cfg.Dataset(name)
		if err != nil {
			return nil, err
		}
		ds, err := datasetLayout(cfg, name, settings, settings.DownsampleRatio)
		if err != nil {
			return nil, err
		}
		targets = append(targets, cleanTarget{name: name, root: ds.Root()})
	}
	return targets, nil
}
