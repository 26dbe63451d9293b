package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"histosync/internal/dataset"
	"histosync/internal/inventory"
	"histosync/internal/logging"
	"histosync/internal/picker"
)

const (
	pickFromRemote = "remote"
	pickFromLocal  = "local"
)

func newPickCommand(ctx *commandContext) *cobra.Command {
	var step int
	var from string
	var fetchDir string

	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Select one image per slice window for a sparse subset",
		Long: "Walks the slice series in windows of --step slices and prints the image closest to the\n" +
			"start of each window. Duplicate slices resolve to the unversioned image, then the lowest\n" +
			"version. With --fetch the picked remote originals are downloaded into a directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from != pickFromRemote && from != pickFromLocal {
				return fmt.Errorf("--from must be %q or %q", pickFromRemote, pickFromLocal)
			}
			if fetchDir != "" && from != pickFromRemote {
				return errors.New("--fetch requires --from remote")
			}

			runCtx, stop := stageContext(cmd)
			defer stop()

			s, err := ctx.openSession(runCtx, sessionOptions{command: "pick", offline: from == pickFromLocal})
			if err != nil {
				return err
			}
			defer s.close(runCtx, nil)

			if step <= 0 {
				step = s.ds.Ratio
			}

			var images []dataset.ImageFile
			if from == pickFromLocal {
				images, err = inventory.List(s.ds.LocalDownsamplesDir(), s.ds.Extension)
				if err != nil {
					return err
				}
			} else {
				names, err := s.remote.List(runCtx, s.ds.RemoteOriginalsDir())
				if err != nil {
					return err
				}
				for _, name := range names {
					if !s.ds.IsImage(name) {
						continue
					}
					img, err := dataset.ParseImage(name)
					if err != nil {
						return err
					}
					images = append(images, img)
				}
			}

			picked, pickErr := picker.Pick(images, step)
			out := cmd.OutOrStdout()
			for _, img := range picked {
				fmt.Fprintln(out, img.Name)
			}
			if pickErr != nil {
				return pickErr
			}

			if fetchDir == "" {
				return nil
			}
			if err := os.MkdirAll(fetchDir, 0o755); err != nil {
				return fmt.Errorf("create fetch directory: %w", err)
			}
			fetched, present := 0, 0
			for _, img := range picked {
				target := filepath.Join(fetchDir, img.Name)
				if _, err := os.Stat(target); err == nil {
					present++
					continue
				}
				remotePath := dataset.RemotePath(s.ds.RemoteOriginalsDir(), img.Name)
				if err := s.remote.Fetch(runCtx, remotePath, target); err != nil {
					return err
				}
				s.logger.Info("picked image fetched",
					logging.String(logging.FieldBasename, img.Basename),
					logging.String("path", target),
				)
				fetched++
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Fetched %d images into %s (%d already present)\n", fetched, fetchDir, present)
			return nil
		},
	}

	cmd.Flags().IntVar(&step, "step", 0, "Slices per window (default: the downsample ratio)")
	cmd.Flags().StringVar(&from, "from", pickFromRemote, "Image source: remote originals or local downsamples")
	cmd.Flags().StringVar(&fetchDir, "fetch", "", "Download the picked remote originals into this directory")
	return cmd
}
